// Package retry drives bounded retries with a pluggable backoff schedule.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns the delay before the given attempt (2, 3, ...) after err.
type BackoffFunc func(attempt int, err error) time.Duration

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	IsRetryable func(err error) bool
}

// Exponential doubles base on every attempt and caps the delay at max.
func Exponential(base, max time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		if attempt < 2 {
			return 0
		}
		d := base
		for i := 2; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Linear grows the delay by step on every attempt.
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		if attempt < 2 {
			return 0
		}
		return time.Duration(attempt-1) * step
	}
}

// Split uses slow for errors matched by isSlow and fast for everything else.
func Split(isSlow func(error) bool, slow, fast BackoffFunc) BackoffFunc {
	return func(attempt int, err error) time.Duration {
		if isSlow(err) {
			return slow(attempt, err)
		}
		return fast(attempt, err)
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy's
// attempts are spent. It returns the number of attempts made. Waiting between
// attempts respects ctx cancellation.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && p.Backoff != nil {
			if delay := p.Backoff(attempt, lastErr); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return zero, attempt - 1, lastErr
				}
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, attempt - 1, lastErr
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err

		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return zero, attempt, err
		}
	}
	return zero, maxAttempts, lastErr
}
