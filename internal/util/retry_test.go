package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ticketing-service/internal/fault"

	"github.com/stretchr/testify/assert"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), time.Second, 2, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("connection refused: %w", fault.ErrDependencyUnavailable)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnBusinessError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), time.Second, 5, func(ctx context.Context) error {
		attempts++
		return fault.ErrPaymentDeclined
	})
	assert.ErrorIs(t, err, fault.ErrPaymentDeclined)
	assert.Equal(t, 1, attempts, "business outcomes are never retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), time.Second, 2, func(ctx context.Context) error {
		attempts++
		return fault.ErrDependencyUnavailable
	})
	assert.ErrorIs(t, err, fault.ErrDependencyUnavailable)
	assert.Equal(t, 3, attempts)
}

func TestRetryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, time.Second, 5, func(ctx context.Context) error {
		attempts++
		cancel()
		return fault.ErrDependencyUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryAppliesPerAttemptTimeout(t *testing.T) {
	err := Retry(context.Background(), 10*time.Millisecond, 0, func(ctx context.Context) error {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out: %w", fault.ErrDependencyUnavailable)
		}
		return ctx.Err()
	})
	assert.ErrorIs(t, err, fault.ErrDependencyUnavailable)
}
