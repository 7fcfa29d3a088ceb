package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Attempts(4, time.Millisecond), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	calls := 0
	var retried []int
	cfg := Attempts(4, time.Millisecond)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("still failing")
	})
	if err == nil || err.Error() != "still failing" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls mismatch: %d", calls)
	}
	if len(retried) != 3 || retried[0] != 1 || retried[2] != 3 {
		t.Fatalf("retry callbacks mismatch: %v", retried)
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Attempts(3, time.Hour), func(context.Context) error {
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{BaseDelay: time.Second}
	if got := cfg.Backoff(0); got != time.Second {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := cfg.Backoff(2); got != 4*time.Second {
		t.Fatalf("attempt 2: %v", got)
	}

	cfg.MaxDelay = 3 * time.Second
	if got := cfg.Backoff(5); got != 3*time.Second {
		t.Fatalf("capped: %v", got)
	}

	fixed := Config{BaseDelay: time.Second, Multiplier: 1}
	if got := fixed.Backoff(3); got != time.Second {
		t.Fatalf("fixed: %v", got)
	}
}
