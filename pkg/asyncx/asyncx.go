// Package asyncx holds the retry helpers used around outbound calls.
package asyncx

import (
	"context"
	"time"
)

// ─── Retry ────────────────────────────────────────────────────────────────────

// Backoff describes how a call is retried.
type Backoff struct {
	// Attempts is the total number of calls, including the first. Values
	// below one are treated as one.
	Attempts int
	// InitialDelay is the wait before the second call. It doubles after each
	// failed attempt, capped at MaxDelay when MaxDelay is positive.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// RetryWithBackoff calls fn until it succeeds, the error is not retryable,
// attempts run out or ctx is done. The last error from fn is returned.
func RetryWithBackoff[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero  T
		val   T
		err   error
		delay = b.InitialDelay
	)

	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for i := range attempts {
		select {
		case <-ctx.Done():
			if err != nil {
				return zero, err
			}
			return zero, ctx.Err()
		default:
		}

		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return zero, err
		}

		if i < attempts-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, err
			case <-timer.C:
			}
			delay *= 2
			if b.MaxDelay > 0 && delay > b.MaxDelay {
				delay = b.MaxDelay
			}
		}
	}
	return zero, err
}

// Retry is RetryWithBackoff for calls with no result value.
func Retry(ctx context.Context, b Backoff, fn func(context.Context) error) error {
	_, err := RetryWithBackoff(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
