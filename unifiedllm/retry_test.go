package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       attempts,
		BaseDelay:         0.001,
		MaxDelay:          1.0,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 60.0}

	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range expected {
		assert.Equal(t, want, policy.Delay(i), "attempt %d", i)
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 5.0}
	assert.Equal(t, 5*time.Second, policy.Delay(10))
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 60.0, Jitter: true}
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		assert.GreaterOrEqual(t, got, 500*time.Millisecond)
		assert.LessOrEqual(t, got, 1500*time.Millisecond)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.Delay(0))
	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.False(t, policy.Jitter)
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				SDKError: SDKError{Message: "overloaded"}, StatusCode: 529, Retryable: true,
			}}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustion(t *testing.T) {
	calls := 0
	var delays []time.Duration
	policy := fastPolicy(3)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		delays = append(delays, delay)
	}

	rateLimited := &RateLimitError{ProviderError: ProviderError{
		SDKError: SDKError{Message: "slow down"}, StatusCode: 429, Retryable: true,
	}}
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", rateLimited
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, rateLimited)

	require.Len(t, delays, 2)
	assert.Greater(t, delays[1], delays[0])
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	authErr := &AuthenticationError{ProviderError: ProviderError{SDKError: SDKError{Message: "bad key"}, StatusCode: 401}}
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", authErr
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, authErr, err)
}

func TestRetryDoesNotRetryUnknownErrors(t *testing.T) {
	calls := 0
	plain := errors.New("malformed response")
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", plain
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, plain, err)
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	retryAfter := 0.01
	var observed time.Duration
	policy := fastPolicy(2)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		observed = delay
	}

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &RateLimitError{ProviderError: ProviderError{Retryable: true, RetryAfter: &retryAfter}}
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, observed)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 10, BackoffMultiplier: 2}

	calls := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", &NetworkError{SDKError: SDKError{Message: "connection reset"}}
	})

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 1, calls)
}
