// ABOUTME: Retrying decorator that retries ErrModelUnavailable with exponential backoff
// ABOUTME: Timeouts, cancellations and other errors are returned on the first attempt

package model

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying retries transient provider failures.
type Retrying struct {
	next            Completer
	maxTries        uint
	initialInterval time.Duration
	logger          *slog.Logger
}

// NewRetrying wraps next. maxTries counts the first attempt; values below 1
// are treated as 1.
func NewRetrying(next Completer, maxTries int, initialInterval time.Duration, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTries < 1 {
		maxTries = 1
	}
	if initialInterval <= 0 {
		initialInterval = backoff.DefaultInitialInterval
	}
	return &Retrying{
		next:            next,
		maxTries:        uint(maxTries),
		initialInterval: initialInterval,
		logger:          logger.With("component", "model_retry"),
	}
}

// Complete implements Completer.
func (r *Retrying) Complete(ctx context.Context, p Prompt) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		out, err := r.next.Complete(ctx, p)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil || !errors.Is(err, ErrModelUnavailable) {
			return "", backoff.Permanent(err)
		}
		r.logger.Warn("model call failed, will retry", "attempt", attempt, "error", err)
		return "", err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxTries),
	)
}

var _ Completer = (*Retrying)(nil)
