package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls retry-with-backoff behavior for one class of external call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool // Scale each delay by a uniform factor in [0.5, 1.5]
}

// Per-service presets. Slow generation services get long, patient schedules;
// fast services fail over quickly.
var (
	VideoRetryPolicy  = RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second, Multiplier: 2.0, Jitter: true}
	ImageRetryPolicy  = RetryPolicy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second, Multiplier: 2.0, Jitter: true}
	SpeechRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 1 * time.Second, MaxDelay: 15 * time.Second, Multiplier: 2.0, Jitter: true}
	ScriptRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: true}
)

// permanentError marks an error as non-retryable. Retry returns it immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Retry gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retry runs op until it succeeds, returns a permanent error, or the policy's
// attempts are exhausted. The last error is returned on exhaustion. Delays
// follow min(base*multiplier^(attempt-1), max), optionally jittered.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		return fmt.Errorf("retry policy has no attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(policy, attempt-1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt-1, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		}
	}

	return lastErr
}

// backoffDelay computes the delay before attempt n+1 (n completed failures).
func backoffDelay(policy RetryPolicy, n int) time.Duration {
	mult := policy.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	delay := float64(policy.BaseDelay) * math.Pow(mult, float64(n-1))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	if policy.Jitter {
		delay *= 0.5 + rand.Float64()
	}

	return time.Duration(delay)
}
