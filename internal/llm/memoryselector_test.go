package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/domain"
)

func TestMemorySelector_ShouldReturnSelectedIDs_WhenProviderRespondsWithJSONArray(t *testing.T) {
	stub := &stubProvider{result: CompletionResult{Content: `Sure thing: ["m1", "m2"]`}}
	router := NewRouter()
	router.Register("anthropic", stub)

	selector := NewMemorySelector(router, config.LLMConfig{MemorySelectionMaxTokens: 256}, "anthropic", "claude-haiku-4-5", "default")

	ids, err := selector.SelectMemories(context.Background(), "analyst", []domain.Message{
		{ID: "m1", From: "analyst", Content: "hello"},
		{ID: "m2", From: "analyst", Content: "world"},
	}, "summarize the conversation", "relevance", 5)

	require.NoError(t, err)
	assert.Equal(t, []domain.MessageID{"m1", "m2"}, ids)
	assert.Equal(t, "anthropic", stub.lastReq.Service)
	assert.Equal(t, "claude-haiku-4-5", stub.lastReq.Model)
}

func TestMemorySelector_ShouldReturnError_WhenProviderFails(t *testing.T) {
	stub := &stubProvider{err: assert.AnError}
	router := NewRouter()
	router.Register("anthropic", stub)

	selector := NewMemorySelector(router, config.LLMConfig{}, "anthropic", "claude-haiku-4-5", "default")
	_, err := selector.SelectMemories(context.Background(), "analyst", nil, "task", "criteria", 0)
	assert.Error(t, err)
}

func TestMemorySelector_ShouldReturnError_WhenResponseHasNoJSONArray(t *testing.T) {
	stub := &stubProvider{result: CompletionResult{Content: "no array here"}}
	router := NewRouter()
	router.Register("anthropic", stub)

	selector := NewMemorySelector(router, config.LLMConfig{}, "anthropic", "claude-haiku-4-5", "default")
	_, err := selector.SelectMemories(context.Background(), "analyst", nil, "task", "criteria", 0)
	assert.Error(t, err)
}

func TestMemorySelector_ShouldCapSelectionPrompt_WhenAtMostIsSet(t *testing.T) {
	stub := &stubProvider{result: CompletionResult{Content: `[]`}}
	router := NewRouter()
	router.Register("anthropic", stub)

	selector := NewMemorySelector(router, config.LLMConfig{}, "anthropic", "claude-haiku-4-5", "default")
	_, err := selector.SelectMemories(context.Background(), "analyst", nil, "task", "criteria", 3)
	require.NoError(t, err)

	lastUserMessage := stub.lastReq.Messages[len(stub.lastReq.Messages)-1]
	assert.Contains(t, lastUserMessage.Content, "Select at most 3 messages")
}
