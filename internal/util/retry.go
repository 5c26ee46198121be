package util

import (
	"context"
	"time"

	"ticketing-service/internal/fault"
)

// Retry runs fn with a per-attempt timeout and retries transport-class
// failures up to retries additional attempts. Business errors are returned
// on the first occurrence; they are never retried.
func Retry(ctx context.Context, timeout time.Duration, retries int, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(attemptCtx)
		cancel()

		if err == nil || !fault.Retryable(err) {
			return err
		}
	}
	return err
}
