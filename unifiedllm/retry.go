package unifiedllm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxAttempts       int     // total attempts, including the first
	BaseDelay         float64 // initial delay in seconds
	MaxDelay          float64 // maximum delay between attempts, in seconds
	BackoffMultiplier float64 // exponential backoff factor
	Jitter            bool    // add random jitter to prevent thundering herd
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns three attempts waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
	}
}

// Delay calculates the delay after failed attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := p.BaseDelay * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 {
		delay = math.Min(delay, p.MaxDelay)
	}
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// Retry executes fn up to policy.MaxAttempts times. Non-retryable errors are
// returned unchanged; if every attempt fails with a retryable error the result
// is a *RetriesExhaustedError wrapping the last one.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
			delay = time.Duration(*rl.RetryAfter * float64(time.Second))
			if maxDelay := time.Duration(policy.MaxDelay * float64(time.Second)); policy.MaxDelay > 0 && delay > maxDelay {
				delay = maxDelay
			}
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}
	}

	return zero, &RetriesExhaustedError{
		SDKError: SDKError{Message: "max retries exceeded", Cause: lastErr},
		Attempts: attempts,
	}
}
