// Package anthropicprovider adapts github.com/anthropics/anthropic-sdk-go
// to the llm.Provider port.
package anthropicprovider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/llm"
)

// KeyResolver maps an ApiKeyID to the literal credential the host
// application manages.
type KeyResolver func(domain.ApiKeyID) (string, error)

// Provider calls the Anthropic Messages API.
type Provider struct {
	resolveKey KeyResolver
	clients    map[string]*anthropic.Client
}

// New returns a Provider that resolves api keys through resolveKey and
// caches one anthropic.Client per resolved key.
func New(resolveKey KeyResolver) *Provider {
	return &Provider{resolveKey: resolveKey, clients: map[string]*anthropic.Client{}}
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	key, err := p.resolveKey(req.ApiKeyID)
	if err != nil {
		return llm.CompletionResult{}, domainerr.NewLLMProviderError("anthropic", req.Model, "resolving api key", err, false)
	}

	client, ok := p.clients[key]
	if !ok {
		c := anthropic.NewClient(option.WithAPIKey(key))
		client = &c
		p.clients[key] = client
	}

	var system string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		if m.Type == domain.MessageTypeSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		if m.Type == domain.MessageTypeAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResult{}, domainerr.NewLLMProviderError("anthropic", req.Model, err.Error(), err, isRetriable(err))
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}

	return llm.CompletionResult{
		Content:   content.String(),
		ToolCalls: toolCalls,
		Usage: domain.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// isRetriable treats rate limit and server errors as transient.
func isRetriable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "500") || strings.Contains(msg, "503")
}
