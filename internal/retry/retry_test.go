package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"speed-ledger-go/internal/store"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseDelay = time.Millisecond
	return p
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("expected 1 call, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("confirm: %w", store.ErrPendingDepositNotFound)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || attempts != 3 {
		t.Errorf("expected 3 calls, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_PersistentTransientIsBounded(t *testing.T) {
	calls := 0
	var delays []time.Duration
	p := fastPolicy()
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		delays = append(delays, delay)
	}

	attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return store.ErrConcurrentModification
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected last error to be preserved, got %v", err)
	}
	if calls != DefaultMaxAttempts || attempts != DefaultMaxAttempts {
		t.Errorf("expected %d calls, got calls=%d attempts=%d", DefaultMaxAttempts, calls, attempts)
	}

	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond, 16 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestDo_NonTransientRunsOnce(t *testing.T) {
	tests := []error{
		store.ErrDuplicateTransaction,
		store.ErrWithdrawalNotFound,
		errors.New("validation failed"),
	}

	for _, want := range tests {
		t.Run(want.Error(), func(t *testing.T) {
			calls := 0
			_, err := Do(context.Background(), fastPolicy(), func(ctx context.Context, attempt int) error {
				calls++
				return want
			})
			if !errors.Is(err, want) {
				t.Errorf("expected %v, got %v", want, err)
			}
			if errors.Is(err, ErrExhausted) {
				t.Errorf("non-transient error must not be reported as exhausted")
			}
			if calls != 1 {
				t.Errorf("expected exactly 1 call, got %d", calls)
			}
		})
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.BaseDelay = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(ctx context.Context, attempt int) error {
			calls++
			return store.ErrWriteConflict
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) && !errors.Is(err, store.ErrWriteConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBackoff_DefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Backoff(1); got != 200*time.Millisecond {
		t.Errorf("expected 200ms, got %v", got)
	}
	if got := p.Backoff(4); got != 1600*time.Millisecond {
		t.Errorf("expected 1.6s, got %v", got)
	}
}
