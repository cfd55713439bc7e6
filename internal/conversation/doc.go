// Package conversation is the orchestration layer between the HTTP handlers
// and the routing graph.
//
// # Overview
//
// The Service turns one inbound message into one cycle:
//
//	svc := conversation.New(store, executor, conversation.Config{...}, logger)
//	resp, err := svc.HandleMessage(ctx, conversation.SendRequest{...})
//
// Key operations:
//
//   - HandleMessage(ctx, req): run a cycle and persist the result
//   - GetConversation(ctx, id): load the stored history
//   - DeleteConversation(ctx, id): clear it once no cycle is running
//   - ListCycles(ctx, id, limit): recent cycle outcomes
//   - Subscribe(ctx, id): stream messages as they are persisted
//
// # Cycle
//
// When a message arrives:
//
//  1. Reject an empty message, or a request id already seen for this conversation
//  2. Generate a conversation id if none was given (derived from the request
//     id when there is one, so a replayed first message finds its conversation)
//  3. Wait for the per-conversation lock (bounded by the cycle timeout)
//  4. Load the state, or start a new one on store.ErrNotFound
//  5. Reset the cycle metadata and append the user message
//  6. Run the graph executor
//  7. Persist according to the outcome
//
// # Persistence rules
//
//	outcome                      saved?   returned
//	---------------------------  -------  --------------------------------
//	terminated (incl. limit)     yes      SendResponse
//	agent / model failure        yes      the error (history kept for retry)
//	cancelled or timed out       no       ErrCycleAborted
//	invalid state                no       the error
//
// Saves use a detached context with a short timeout, so a completed cycle is
// committed even if the client has just gone away.
//
// # Serialization
//
// At most one cycle per conversation runs in this process, enforced by a
// weighted semaphore per conversation id. Across processes the store's
// versioned save reports store.ErrConflict instead of overwriting history.
//
// # Broadcasting
//
// Messages are published to subscribers only after they have been saved.
// Slow subscribers drop messages rather than block the cycle.
package conversation
