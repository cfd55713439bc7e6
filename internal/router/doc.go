// Package router implements the supervisor that decides which agent handles
// the next turn of a cycle, or that the cycle is finished.
//
// A Router combines a Classifier (usually the model-backed LLMClassifier)
// with the agent registry and the turn ceiling:
//
//   - turn_count at the ceiling: forced Terminate, no classification call
//   - classified as a registered agent: RouteTo(agent)
//   - classified as FINISH with an agent reply last in history: Terminate
//   - FINISH without a reply, unknown name, or unparseable output: RouteTo(default agent)
//
// Classifier failures (model unavailable or timed out) are returned to the
// caller unchanged.
package router
