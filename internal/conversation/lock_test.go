// ABOUTME: Tests for the per-conversation lock table
// ABOUTME: Checks mutual exclusion, context-aware waiting and cleanup

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTable_ExclusivePerID(t *testing.T) {
	locks := newLockTable()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "conv-1")
	require.NoError(t, err)

	// a different conversation is independent
	releaseOther, err := locks.acquire(ctx, "conv-2")
	require.NoError(t, err)
	releaseOther()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(waitCtx, "conv-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // idempotent

	again, err := locks.acquire(ctx, "conv-1")
	require.NoError(t, err)
	again()

	assert.Equal(t, 0, locks.size())
}
