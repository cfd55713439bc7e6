// Package store persists conversation state for the gateway.
//
// # Interfaces
//
// Store is the persistence gateway used by the conversation service:
//
//   - LoadConversation(ctx, id): returns ErrNotFound for unknown ids
//   - SaveConversation(ctx, st): compare-and-swap on st.Version
//   - DeleteConversation(ctx, id): drops the state and its cycle log
//   - RecordCycle / ListCycles: append-only log of cycle outcomes
//   - Ping, Close
//
// Two implementations exist. SQLiteStore (modernc.org/sqlite, no cgo) is used
// in production. MemoryStore keeps everything in memory and backs the
// `:memory:` database path as well as tests.
//
// # Versioning
//
// Each saved conversation carries a version. A state loaded at version N can
// only be saved while the stored row is still at N; the save bumps it to N+1
// and updates st.Version. A state with Version 0 is inserted and fails with
// ErrConflict if the id already exists. This keeps two writers from
// overwriting each other's history even across processes.
//
// # Schema
//
//	conversations(id PK, state JSON, version, terminated, created_at, updated_at)
//	cycles(id PK, conversation_id, outcome, agent_name, turn_count, error, duration_ms, created_at)
//
// Timestamps are stored as RFC3339 text in UTC.
package store
