package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/config"
	apperrors "switchyard/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	sentinel := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return NewFatalError(sentinel)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 1, calls)
}

func TestRetryFollowsCodedErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return apperrors.ErrInternal
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "internal errors are retried")

	calls = 0
	err = Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return apperrors.ErrNotFound
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 1, calls, "client errors are not retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still failing")
	calls := 0
	var retries []int
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		return sentinel
	}, func(attempt int, err error, _ time.Duration) {
		retries = append(retries, attempt)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(5), func() error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestFromConfig(t *testing.T) {
	base := DefaultPolicy()
	got := FromConfig(config.RetryConfig{MaxAttempts: 7, Multiplier: 1.5}, base)

	assert.Equal(t, 7, got.MaxAttempts)
	assert.Equal(t, 1.5, got.Multiplier)
	assert.Equal(t, base.InitialInterval, got.InitialInterval)
	assert.Equal(t, base.MaxElapsedTime, got.MaxElapsedTime)
}

func TestBackOffScheduleIsCapped(t *testing.T) {
	policy := Policy{
		MaxAttempts:     4,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      4,
	}
	b := newBackOff(context.Background(), policy)

	for i := 0; i < policy.MaxAttempts-1; i++ {
		next := b.NextBackOff()
		require.NotEqual(t, backoff.Stop, next)
		assert.LessOrEqual(t, next, 30*time.Millisecond, "jitter stays within half of the cap")
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestRetryReportsScheduledDelay(t *testing.T) {
	var delays []time.Duration
	_ = RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		return errors.New("transient")
	}, func(_ int, _ error, next time.Duration) {
		delays = append(delays, next)
	})

	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 3*time.Millisecond)
	}
}
