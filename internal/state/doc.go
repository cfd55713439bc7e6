// Package state holds the record threaded through one support conversation.
//
// A State carries the append-only message history plus the metadata of the
// cycle in flight: the active agent, the turn counter and the termination
// flag. BeginCycle resets that metadata when a new user message arrives.
//
// Violations such as appending after Terminate report ErrInvalidState.
package state
