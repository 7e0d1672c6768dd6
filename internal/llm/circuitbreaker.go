package llm

import (
	"context"
	"sync"
	"time"

	"github.com/dipeo/dipeo/internal/domainerr"
)

// CircuitState is the tri-state a CircuitBreaker occupies.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes when a provider is tripped and how long it
// stays tripped.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and
// probes again after a minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 60 * time.Second}
}

// CircuitBreakerProvider wraps a Provider so repeated failures cause
// subsequent calls to fail fast instead of piling up against a dead
// backend.
type CircuitBreakerProvider struct {
	mu sync.Mutex

	inner  Provider
	config CircuitBreakerConfig

	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
}

// WithCircuitBreaker wraps inner with a circuit breaker.
func WithCircuitBreaker(inner Provider, config CircuitBreakerConfig) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{inner: inner, config: config, state: StateClosed}
}

func (cb *CircuitBreakerProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if err := cb.beforeRequest(); err != nil {
		return CompletionResult{}, err
	}

	result, err := cb.inner.Complete(ctx, req)
	cb.afterRequest(err)
	return result, err
}

func (cb *CircuitBreakerProvider) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.state = StateHalfOpen
			return nil
		}
		return domainerr.NewLLMProviderError("", "", "circuit breaker open", nil, false)
	default:
		return nil
	}
}

func (cb *CircuitBreakerProvider) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
		return
	}

	cb.consecutiveSuccesses++
	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.state = StateClosed
	}
}

// State reports the breaker's current state, for observability.
func (cb *CircuitBreakerProvider) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
