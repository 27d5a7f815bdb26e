package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"bananagen/internal/logger"
)

var testLog = logger.New("retry_test")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testLog, "op", fastPolicy(4), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testLog, "op", fastPolicy(4), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestAttemptBoundAndLastError(t *testing.T) {
	calls := 0
	sentinel := errors.New("still broken")
	err := Do(context.Background(), testLog, "op", fastPolicy(4), func() error {
		calls++
		return sentinel
	})
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected last error to surface, got %v", err)
	}
}

func TestCancellationNeverRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, testLog, "op", fastPolicy(5), func() error {
		calls++
		cancel() // interruption arrives while the call is in flight
		return errors.New("also failed")
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry after cancellation)", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCancellationAbortsBackoffSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 2, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Second}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, testLog, "op", p, func() error { return errors.New("transient") })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry sleep swallowed the cancellation")
	}
}

func TestAlreadyCancelledSkipsCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, testLog, "op", fastPolicy(3), func() error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
