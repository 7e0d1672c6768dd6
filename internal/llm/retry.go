package llm

import (
	"context"
	"math"
	"time"

	"github.com/dipeo/dipeo/internal/domainerr"
)

// RetryPolicy controls exponential backoff retry around a Provider call.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy retries transient provider failures (rate limits,
// timeouts) three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryingProvider wraps a Provider, retrying calls that fail with a
// retriable LLMProviderError.
type RetryingProvider struct {
	inner  Provider
	policy RetryPolicy
}

// WithRetry wraps inner in retry logic. A zero-value policy disables
// retries.
func WithRetry(inner Provider, policy RetryPolicy) *RetryingProvider {
	return &RetryingProvider{inner: inner, policy: policy}
}

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CompletionResult{}, ctx.Err()
			case <-time.After(r.delay(attempt)):
			}
		}

		result, err := r.inner.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		if !domainerr.IsRetryable(err) {
			return CompletionResult{}, err
		}
		lastErr = err
	}
	return CompletionResult{}, lastErr
}

func (r *RetryingProvider) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitterAmount := d * 0.1
		jitter := (2*float64(time.Now().UnixNano()%1000)/1000 - 1) * jitterAmount
		d += jitter
	}
	return time.Duration(d)
}
