package shopify

import (
	"context"
	"time"

	"github.com/shoplytics/shoplytics-backend/pkg/config"
)

// Throttle paces Shopify API calls below the Admin REST bucket rate and
// retries the retryable failures with exponential backoff.
type Throttle struct {
	callDelay   time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffCeil time.Duration

	// OnRetry, when set, is invoked before each retry attempt.
	OnRetry func(err error)

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewThrottle(cfg config.SyncConfig) *Throttle {
	return &Throttle{
		callDelay:   cfg.CallDelay,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		backoffCeil: cfg.BackoffCeiling,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff returns the delay before retry attempt n (0-based), doubling from
// the base and clamped at the ceiling.
func (t *Throttle) backoff(attempt int) time.Duration {
	d := t.backoffBase << attempt
	if d > t.backoffCeil || d <= 0 {
		return t.backoffCeil
	}
	return d
}

// Do runs fn, retrying on retryable transport failures up to the attempt
// budget and pausing after every success to stay under the call rate.
// Non-retryable errors are returned immediately.
func (t *Throttle) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := t.sleep(ctx, t.backoff(attempt-1)); sleepErr != nil {
				return sleepErr
			}
		}

		err = fn(ctx)
		if err == nil {
			return t.sleep(ctx, t.callDelay)
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt+1 < t.maxAttempts && t.OnRetry != nil {
			t.OnRetry(err)
		}
	}
	return err
}
