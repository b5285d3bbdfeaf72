package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func retryableErr() error {
	return types.NewError(types.ErrUpstreamError, "503 from upstream").WithRetryable(true)
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return retryableErr()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestBackoffRetryer_MaxRetriesExceeded(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return retryableErr()
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return types.NewError(types.ErrUnauthorized, "bad key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestBackoffRetryer_CustomPredicate(t *testing.T) {
	sentinel := errors.New("flaky")
	policy := fastPolicy(1)
	policy.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }

	var retried []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	retryer := NewBackoffRetryer(policy, nil)
	err := retryer.Do(context.Background(), func() error { return sentinel })

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, []int{1}, retried)
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		cancel()
		return retryableErr()
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	attempts := 0
	v, err := DoWithResult(context.Background(), retryer, func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, retryableErr()
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, attempts)
}

func TestCalculateDelay_Capped(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(10), nil).(*backoffRetryer)

	assert.Equal(t, 5*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(5))
}
