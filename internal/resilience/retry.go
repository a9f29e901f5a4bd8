package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted indicates that every attempt of a retried
// operation failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetrySettings configures a fixed-interval bounded retry.
type RetrySettings struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Interval is the fixed delay between attempts
	Interval time.Duration
	// AttemptTimeout bounds a single attempt; zero means no per-attempt bound
	AttemptTimeout time.Duration
	// OnRetry is called after each failed attempt
	OnRetry func(attempt int, err error)
}

// Retry executes an operation at a fixed interval until it succeeds,
// its attempt budget is spent, or the context is cancelled.
type Retry struct {
	settings RetrySettings
}

// NewRetry creates a retry primitive with the given settings
func NewRetry(settings RetrySettings) *Retry {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Second
	}

	return &Retry{settings: settings}
}

// Do runs op until the first success. A failure on the final attempt is
// reported as ErrRetriesExhausted wrapping the last error.
func (r *Retry) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error

	for attempt := 1; attempt <= r.settings.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if r.settings.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.settings.AttemptTimeout)
		}

		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		last = err

		if r.settings.OnRetry != nil {
			r.settings.OnRetry(attempt, err)
		}

		if attempt == r.settings.MaxAttempts {
			break
		}

		select {
		case <-time.After(r.settings.Interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.settings.MaxAttempts, last)
}
