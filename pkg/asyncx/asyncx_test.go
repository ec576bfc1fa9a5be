package asyncx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestRetryWithBackoffSucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := RetryWithBackoff(context.Background(), Backoff{Attempts: 3, InitialDelay: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errFlaky
			}
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffReturnsLastError(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), Backoff{Attempts: 2, InitialDelay: time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			return "", errFlaky
		})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), Backoff{
		Attempts:     5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, permanent) },
	}, func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Backoff{Attempts: 3}, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryZeroAttemptsCallsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Backoff{}, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
