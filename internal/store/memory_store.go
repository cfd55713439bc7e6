// ABOUTME: In-memory Store implementation backing the :memory: database mode and tests
// ABOUTME: Applies the same versioning rules as SQLiteStore without touching disk

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/support-gateway/internal/state"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*state.State    // keyed by conversation ID
	cycles        map[string][]*CycleRecord // keyed by conversation ID
	saves         int
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*state.State),
		cycles:        make(map[string][]*CycleRecord),
	}
}

// LoadConversation returns a copy of the stored state.
func (m *MemoryStore) LoadConversation(ctx context.Context, id string) (*state.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

// SaveConversation stores a copy of st with compare-and-swap on version.
func (m *MemoryStore) SaveConversation(ctx context.Context, st *state.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.conversations[st.ConversationID]
	switch {
	case st.Version == 0 && exists:
		return fmt.Errorf("%w: %s already exists", ErrConflict, st.ConversationID)
	case st.Version != 0 && (!exists || current.Version != st.Version):
		return fmt.Errorf("%w: %s at version %d", ErrConflict, st.ConversationID, st.Version)
	}

	st.Version++
	m.conversations[st.ConversationID] = st.Clone()
	m.saves++
	return nil
}

// DeleteConversation removes a conversation and its cycle log.
func (m *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.cycles, id)
	return nil
}

// SaveCount returns how many saves succeeded.
func (m *MemoryStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// RecordCycle appends a copy of rec.
func (m *MemoryStore) RecordCycle(ctx context.Context, rec *CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r := *rec
	m.cycles[r.ConversationID] = append(m.cycles[r.ConversationID], &r)
	return nil
}

// ListCycles returns copies of the newest records, newest first.
func (m *MemoryStore) ListCycles(ctx context.Context, conversationID string, limit int) ([]*CycleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.cycles[conversationID]
	out := make([]*CycleRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		c := *recs[i]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
