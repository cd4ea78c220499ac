// Package retry provides a fixed-delay retry primitive shared by the
// prober and the alert dispatcher.
package retry

import (
	"context"
	"time"
)

// Do runs fn up to attempts times, sleeping delay between attempts.
// Delay is fixed: no jitter, no exponential growth. It returns nil as soon
// as fn succeeds, the last error once attempts are exhausted, or the
// context error if the context is cancelled while waiting.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
