// Package retry runs an operation under a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy describes when and how often an operation is retried.
// A nil Retryable retries every error.
type Policy struct {
	Name        string
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged so callers
// can still match its class with errors.Is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !p.retryable(err) || attempt == attempts {
			return err
		}

		slog.Warn("operation failed (retrying...)",
			"op", p.Name,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if err := Sleep(ctx, p.Delay); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
