// Package openaiprovider adapts github.com/sashabaranov/go-openai to the
// llm.Provider port.
package openaiprovider

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/llm"
)

// KeyResolver maps an ApiKeyID to the literal credential the host
// application manages; the core never persists raw keys.
type KeyResolver func(domain.ApiKeyID) (string, error)

// Provider calls the OpenAI chat completions API.
type Provider struct {
	resolveKey KeyResolver
	clients    map[string]*openai.Client
}

// New returns a Provider that resolves api keys through resolveKey and
// caches one openai.Client per resolved key.
func New(resolveKey KeyResolver) *Provider {
	return &Provider{resolveKey: resolveKey, clients: map[string]*openai.Client{}}
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	key, err := p.resolveKey(req.ApiKeyID)
	if err != nil {
		return llm.CompletionResult{}, domainerr.NewLLMProviderError("openai", req.Model, "resolving api key", err, false)
	}

	client, ok := p.clients[key]
	if !ok {
		client = openai.NewClient(key)
		p.clients[key] = client
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openaiRole(m.Type),
			Content: m.Content,
		})
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Tools:       tools,
	})
	if err != nil {
		return llm.CompletionResult{}, domainerr.NewLLMProviderError("openai", req.Model, err.Error(), err, isRetriable(err))
	}
	if len(resp.Choices) == 0 {
		return llm.CompletionResult{}, domainerr.NewLLMProviderError("openai", req.Model, "no choices returned", nil, false)
	}

	choice := resp.Choices[0]
	result := llm.CompletionResult{
		Content: choice.Message.Content,
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

func openaiRole(t domain.MessageType) string {
	switch t {
	case domain.MessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case domain.MessageTypeAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// isRetriable treats rate limit and server errors, and any error that is
// not an API error (such as a network failure), as transient; other API
// errors (bad request, auth failure) are not worth retrying.
func isRetriable(err error) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return true
	}
	return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
}
