// ABOUTME: Store interface and record types for support-gateway persistence
// ABOUTME: Defines conversation load/save with optimistic versioning and the cycle log

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/support-gateway/internal/state"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a save loses a version race
var ErrConflict = errors.New("conversation version conflict")

// CycleOutcome classifies how a cycle ended.
type CycleOutcome string

const (
	OutcomeOK            CycleOutcome = "ok"
	OutcomeLimitExceeded CycleOutcome = "limit_exceeded"
	OutcomeFailed        CycleOutcome = "failed"
	OutcomeAborted       CycleOutcome = "aborted"
)

// CycleRecord is one entry in the cycle log.
type CycleRecord struct {
	ID             string
	ConversationID string
	Outcome        CycleOutcome
	AgentName      string
	TurnCount      int
	Error          string
	Duration       time.Duration
	CreatedAt      time.Time
}

// Store defines the persistence operations used by the gateway.
type Store interface {
	// LoadConversation returns the saved state, or ErrNotFound.
	LoadConversation(ctx context.Context, id string) (*state.State, error)

	// SaveConversation writes st if st.Version matches the stored version,
	// then advances st.Version. Returns ErrConflict otherwise.
	SaveConversation(ctx context.Context, st *state.State) error

	// DeleteConversation removes a conversation and its cycle log.
	// Returns ErrNotFound if the conversation doesn't exist.
	DeleteConversation(ctx context.Context, id string) error

	// RecordCycle appends a cycle outcome. ID and CreatedAt are filled if empty.
	RecordCycle(ctx context.Context, rec *CycleRecord) error

	// ListCycles returns the newest records for a conversation, newest first.
	ListCycles(ctx context.Context, conversationID string, limit int) ([]*CycleRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// normalizeLimit applies the default (50) and cap (500) to list limits.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
