package shopify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shoplytics/shoplytics-backend/pkg/config"
)

func testThrottle() (*Throttle, *[]time.Duration) {
	throttle := NewThrottle(config.SyncConfig{
		CallDelay:      500 * time.Millisecond,
		MaxAttempts:    5,
		BackoffBase:    500 * time.Millisecond,
		BackoffCeiling: 16 * time.Second,
	})
	sleeps := &[]time.Duration{}
	throttle.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return throttle, sleeps
}

func TestThrottlePausesAfterSuccess(t *testing.T) {
	throttle, sleeps := testThrottle()

	calls := 0
	err := throttle.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 500*time.Millisecond {
		t.Fatalf("expected single 500ms pause, got %v", *sleeps)
	}
}

func TestThrottleBacksOffOnRetryableFailures(t *testing.T) {
	throttle, sleeps := testThrottle()

	calls := 0
	err := throttle.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return statusError("GET", "/orders.json", 429, "throttled")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}

	// three backoff pauses doubling from the base, then the post-success pause
	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		500 * time.Millisecond,
	}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d pauses, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("pause %d: expected %s, got %s", i, d, (*sleeps)[i])
		}
	}
}

func TestThrottleBackoffClampsAtCeiling(t *testing.T) {
	throttle, _ := testThrottle()

	if got := throttle.backoff(0); got != 500*time.Millisecond {
		t.Fatalf("attempt 0: got %s", got)
	}
	if got := throttle.backoff(5); got != 16*time.Second {
		t.Fatalf("attempt 5: expected ceiling, got %s", got)
	}
	if got := throttle.backoff(40); got != 16*time.Second {
		t.Fatalf("overflowing attempt: expected ceiling, got %s", got)
	}
}

func TestThrottleGivesUpAfterMaxAttempts(t *testing.T) {
	throttle, _ := testThrottle()

	retries := 0
	throttle.OnRetry = func(err error) { retries++ }

	calls := 0
	err := throttle.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return statusError("GET", "/orders.json", 503, "down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 5 {
		t.Fatalf("expected 5 attempts, got %d", calls)
	}
	if retries != 4 {
		t.Fatalf("expected 4 retries, got %d", retries)
	}
}

func TestThrottleReturnsNonRetryableImmediately(t *testing.T) {
	throttle, sleeps := testThrottle()

	calls := 0
	permanent := statusError("GET", "/orders/1.json", 404, "gone")
	err := throttle.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("expected no pauses, got %v", *sleeps)
	}
}

func TestThrottleStopsWhenContextCancelled(t *testing.T) {
	throttle, _ := testThrottle()
	throttle.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := throttle.Do(ctx, func(ctx context.Context) error {
		return statusError("GET", "/orders.json", 429, "throttled")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
