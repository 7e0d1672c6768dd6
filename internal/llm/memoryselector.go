package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
)

const selectorSystemPrompt = `You are a memory selection facet. Given a list of candidate messages ` +
	`and a description of an upcoming task, return a JSON array containing only the "id" values of the ` +
	`messages relevant to that task. Respond with the JSON array and nothing else.`

// selectorPersonSuffix marks the derived selector person so conversation
// filtering can exclude its own traffic from future candidate lists.
const selectorPersonSuffix = ".__selector"

// MemorySelector invokes a Provider in "memory selection mode": a derived
// person whose system prompt switches the model to returning a JSON array
// of message ids, satisfying conversation.Selector.
type MemorySelector struct {
	router  *Router
	llmCfg  config.LLMConfig
	service string
	model   string
	apiKey  domain.ApiKeyID
}

// NewMemorySelector returns a selector that runs on the given
// service/model/key, independent of whichever person requested the
// selection.
func NewMemorySelector(router *Router, llmCfg config.LLMConfig, service, model string, apiKey domain.ApiKeyID) *MemorySelector {
	return &MemorySelector{router: router, llmCfg: llmCfg, service: service, model: model, apiKey: apiKey}
}

func (s *MemorySelector) SelectMemories(ctx context.Context, person domain.PersonID, candidates []domain.Message, taskPreview, criteria string, atMost int) ([]domain.MessageID, error) {
	listing := formatCandidates(candidates)

	prompt := fmt.Sprintf(
		"Task preview:\n%s\n\nSelection criteria: %s\n\nCandidate messages:\n%s\n",
		truncate(taskPreview, 500), criteria, listing,
	)
	if atMost > 0 {
		prompt += fmt.Sprintf("\nSelect at most %d messages.\n", atMost)
	}

	req := CompletionRequest{
		Service:     s.service,
		Model:       s.model,
		ApiKeyID:    s.apiKey,
		Temperature: 0,
		MaxTokens:   s.llmCfg.MemorySelectionMaxTokens,
		Messages: []domain.Message{
			{From: domain.SystemPersonID, Type: domain.MessageTypeSystem, Content: selectorSystemPrompt},
			{From: domain.PersonID(string(person) + selectorPersonSuffix), Type: domain.MessageTypeUser, Content: prompt},
		},
	}

	result, err := s.router.Complete(ctx, req)
	if err != nil {
		return nil, domainerr.NewMemorySelectionError(string(person), "selector facet call failed", err)
	}

	ids, err := parseSelectedIDs(result.Content)
	if err != nil {
		return nil, domainerr.NewMemorySelectionError(string(person), "selector facet returned malformed output", err)
	}
	return ids, nil
}

func formatCandidates(messages []domain.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "- id=%s from=%s: %s\n", m.ID, m.From, truncate(m.Content, 160))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseSelectedIDs(content string) ([]domain.MessageID, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in selector response")
	}

	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, err
	}

	ids := make([]domain.MessageID, len(raw))
	for i, id := range raw {
		ids[i] = domain.MessageID(id)
	}
	return ids, nil
}
