package retry

import (
	"context"
	"math/rand"
	"time"

	"bananagen/internal/logger"
)

// Policy bounds the retry loop. Delays grow as BaseDelay*2^(attempt-1),
// jittered by a uniform multiplier in [0.7, 1.3] and capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default mirrors the production retry settings for the Gemini endpoints.
func Default() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 20 * time.Second}
}

// Do runs fn up to p.MaxAttempts times. It knows nothing about what fn
// does; it is the single choke point for transient-fault handling.
//
// Context cancellation is the cooperative stand-in for user interruption:
// it is never retried, never wrapped, and aborts a pending backoff sleep
// immediately. Every other error is treated as transient until attempts are
// exhausted, at which point the last error is returned as-is so the caller
// can decide whether it dooms the SKU or the run.
func Do(ctx context.Context, log *logger.Logger, name string, p Policy, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.LogDebugf("attempt %d/%d for %s", attempt, attempts, name)

		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		sleep := time.Duration(float64(delay) * (0.7 + 0.6*rand.Float64()))
		if sleep > p.MaxDelay {
			sleep = p.MaxDelay
		}
		log.LogWarnf("%s failed (attempt %d/%d): %v. Retrying in %.1fs", name, attempt, attempts, err, sleep.Seconds())

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	log.LogDebugf("all %d attempts exhausted for %s", attempts, name)
	return lastErr
}
