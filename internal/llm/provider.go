// Package llm defines the provider port PersonJob handlers and the memory
// selector facet call through, plus retrying and circuit-breaking wrappers
// (WithRetry, WithCircuitBreaker) that can be placed around any Provider.
package llm

import (
	"context"

	"github.com/dipeo/dipeo/internal/domain"
)

// ToolCall is a provider-agnostic function-call request the model emitted.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// CompletionRequest is a provider-agnostic chat completion request built
// from a PersonJob node's resolved prompt and selected memory.
type CompletionRequest struct {
	Service     string
	Model       string
	ApiKeyID    domain.ApiKeyID
	Messages    []domain.Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolSpec
}

// ToolSpec declares a callable tool the model may invoke (MCP-surfaced or
// built-in).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CompletionResult is a provider-agnostic chat completion response.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     domain.TokenUsage
}

// Provider is the port every concrete LLM backend implements.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Router dispatches a CompletionRequest to the Provider registered for its
// Service name, so a diagram's persons catalog can mix providers freely.
type Router struct {
	providers map[string]Provider
}

// NewRouter returns a Router with no providers registered.
func NewRouter() *Router {
	return &Router{providers: map[string]Provider{}}
}

// Register binds a Provider to a service name ("openai", "anthropic").
func (r *Router) Register(service string, p Provider) {
	r.providers[service] = p
}

// Complete resolves req.Service to a registered Provider and delegates.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	p, ok := r.providers[req.Service]
	if !ok {
		return CompletionResult{}, newUnregisteredServiceError(req.Service)
	}
	return p.Complete(ctx, req)
}
