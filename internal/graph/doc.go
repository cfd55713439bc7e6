// Package graph drives one cycle of a support conversation: router, agent,
// router, until the router terminates.
//
// The executor is a three-phase state machine:
//
//	AWAITING_ROUTING --RouteTo(a)--> AGENT_RUNNING --reply--> AWAITING_ROUTING
//	AWAITING_ROUTING --Terminate--> DONE
//
// A normal cycle makes one pass: route once, one agent reply, terminate.
// The turn ceiling is enforced here as well as in the router, so a decider
// that never terminates still ends in DONE with LimitExceeded set.
//
// Agent and classifier failures abort the cycle with Terminated still false.
// The caller decides whether to persist the partial history.
package graph
