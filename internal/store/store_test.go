// ABOUTME: Contract tests run against both SQLiteStore and MemoryStore
// ABOUTME: Covers NotFound, versioned saves, conflicts and the cycle log

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-gateway/internal/state"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func sampleState(t *testing.T, id string) *state.State {
	t.Helper()
	st := state.New(id)
	_, err := st.AppendMessage(state.RoleUser, "I need help with billing", "")
	require.NoError(t, err)
	require.NoError(t, st.RouteTo("billing_agent"))
	_, err = st.AppendMessage(state.RoleAgent, "Sure, what's the invoice number?", "billing_agent")
	require.NoError(t, err)
	require.NoError(t, st.Terminate())
	return st
}

func TestLoadConversation_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		_, err := s.LoadConversation(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSaveAndLoad(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := sampleState(t, "conv-1")

		require.NoError(t, s.SaveConversation(ctx, st))
		assert.Equal(t, int64(1), st.Version)

		got, err := s.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "conv-1", got.ConversationID)
		assert.True(t, got.Terminated)
		assert.Equal(t, 1, got.TurnCount)
		assert.Equal(t, "billing_agent", got.ActiveAgent)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, st.Messages[0].ID, got.Messages[0].ID)
		assert.Equal(t, state.RoleAgent, got.Messages[1].Role)
		assert.Equal(t, "billing_agent", got.Messages[1].AgentName)
	})
}

func TestSaveConversation_AdvancesVersion(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := sampleState(t, "conv-1")
		require.NoError(t, s.SaveConversation(ctx, st))

		loaded, err := s.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)
		loaded.BeginCycle()
		_, err = loaded.AppendMessage(state.RoleUser, "INV-42", "")
		require.NoError(t, err)

		require.NoError(t, s.SaveConversation(ctx, loaded))
		assert.Equal(t, int64(2), loaded.Version)

		again, err := s.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Len(t, again.Messages, 3)
		assert.False(t, again.Terminated)
	})
}

func TestSaveConversation_Conflict(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveConversation(ctx, sampleState(t, "conv-1")))

		a, err := s.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)
		b, err := s.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)

		require.NoError(t, s.SaveConversation(ctx, a))
		err = s.SaveConversation(ctx, b)
		assert.True(t, errors.Is(err, ErrConflict))
		assert.Equal(t, int64(1), b.Version, "failed save must not advance version")

		// a fresh state for an existing id is also a conflict
		err = s.SaveConversation(ctx, sampleState(t, "conv-1"))
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestDeleteConversation(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveConversation(ctx, sampleState(t, "conv-1")))
		require.NoError(t, s.SaveConversation(ctx, sampleState(t, "conv-2")))
		require.NoError(t, s.RecordCycle(ctx, &CycleRecord{ConversationID: "conv-1", Outcome: OutcomeOK}))
		require.NoError(t, s.RecordCycle(ctx, &CycleRecord{ConversationID: "conv-2", Outcome: OutcomeOK}))

		require.NoError(t, s.DeleteConversation(ctx, "conv-1"))

		_, err := s.LoadConversation(ctx, "conv-1")
		assert.ErrorIs(t, err, ErrNotFound)
		recs, err := s.ListCycles(ctx, "conv-1", 0)
		require.NoError(t, err)
		assert.Empty(t, recs)

		_, err = s.LoadConversation(ctx, "conv-2")
		assert.NoError(t, err, "other conversations are untouched")
		recs, err = s.ListCycles(ctx, "conv-2", 0)
		require.NoError(t, err)
		assert.Len(t, recs, 1)

		assert.ErrorIs(t, s.DeleteConversation(ctx, "conv-1"), ErrNotFound)

		// the id can be started again from version 0
		assert.NoError(t, s.SaveConversation(ctx, sampleState(t, "conv-1")))
	})
}

func TestCycleLog(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Minute)

		for i, outcome := range []CycleOutcome{OutcomeOK, OutcomeFailed, OutcomeLimitExceeded} {
			rec := &CycleRecord{
				ConversationID: "conv-1",
				Outcome:        outcome,
				AgentName:      "technical_agent",
				TurnCount:      i + 1,
				Duration:       1500 * time.Millisecond,
				CreatedAt:      base.Add(time.Duration(i) * time.Second),
			}
			if outcome == OutcomeFailed {
				rec.Error = "model timeout"
			}
			require.NoError(t, s.RecordCycle(ctx, rec))
			assert.NotEmpty(t, rec.ID)
		}
		require.NoError(t, s.RecordCycle(ctx, &CycleRecord{ConversationID: "other", Outcome: OutcomeAborted}))

		recs, err := s.ListCycles(ctx, "conv-1", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, OutcomeLimitExceeded, recs[0].Outcome)
		assert.Equal(t, OutcomeFailed, recs[1].Outcome)
		assert.Equal(t, "model timeout", recs[1].Error)
		assert.Equal(t, 1500*time.Millisecond, recs[0].Duration)

		all, err := s.ListCycles(ctx, "conv-1", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestPing(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		assert.NoError(t, s.Ping(context.Background()))
	})
}
