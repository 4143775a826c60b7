// Package reliability centralizes retry policy for outbound control-plane
// requests. Media sockets are never retried, but a failed answer callback
// is worth a few attempts before the call is written off.
package reliability

import (
	"context"
	"fmt"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Do invokes fn until it succeeds, fails permanently, or attempts run out.
// Between attempts it waits a capped exponential backoff, or returns early
// when the context is cancelled. retryable may be nil to retry every error.
func Do(ctx context.Context, attempts int, base, cap time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := ExponentialBackoff(attempt-1, base, cap)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted on attempt %d: %w", attempt+1, ctx.Err())
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, err)
}
