package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"speed-ledger-go/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 100 * time.Millisecond
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds how often and how fast an operation is re-run.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// IsTransient decides whether an error is worth another attempt.
	// Defaults to store.IsTransient.
	IsTransient func(error) bool
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		IsTransient: store.IsTransient,
	}
}

// Backoff returns the pause after the given failed attempt (1-based):
// BaseDelay * 2^attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Do runs fn until it succeeds, returns a non-transient error, or
// MaxAttempts is reached. fn is expected to open its own transaction on
// every call; nothing from a failed attempt is reused. It returns the
// number of attempts made.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.IsTransient == nil {
		p.IsTransient = store.IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}

		// A cancelled caller is never transient, whatever the error says.
		if ctx.Err() != nil || !p.IsTransient(lastErr) {
			return attempt, lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		zap.L().Warn("Transient failure, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}
