// ABOUTME: Per-conversation cycle lock built on weighted semaphores
// ABOUTME: Acquisition honours context cancellation; idle entries are removed

package conversation

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type convLock struct {
	sem  *semaphore.Weighted
	refs int
}

// lockTable hands out one semaphore per conversation id.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*convLock)}
}

// acquire blocks until the conversation is free or ctx is done.
func (t *lockTable) acquire(ctx context.Context, id string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &convLock{sem: semaphore.NewWeighted(1)}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		t.drop(id, l)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			t.drop(id, l)
		})
	}, nil
}

func (t *lockTable) drop(id string, l *convLock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
}

// size returns the number of conversations with a holder or waiter.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
