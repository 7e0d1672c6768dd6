package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/conversation"
	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/envelope"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/llm"
	"github.com/dipeo/dipeo/internal/llm/tools"
)

// ToolConfig is one entry of a person_job node's tools list.
type ToolConfig struct {
	Name string `json:"name"`
}

// PersonJobConfig is a person_job node's type-specific data.
type PersonJobConfig struct {
	Person              string       `json:"person"`
	FirstOnlyPrompt     string       `json:"first_only_prompt"`
	DefaultPrompt       string       `json:"default_prompt"`
	ResolvedPrompt      string       `json:"resolved_prompt"`
	ResolvedFirstPrompt string       `json:"resolved_first_prompt"`
	MemorizeTo          string       `json:"memorize_to"`
	MemoryProfile       string       `json:"memory_profile"`
	AtMost              int          `json:"at_most"`
	IgnorePerson        string       `json:"ignore_person"`
	Tools               []ToolConfig `json:"tools"`
	TextFormat          string       `json:"text_format"`
	MaxIteration        int          `json:"max_iteration"`
}

// PersonJobHandler is the conversation/memory-aware LLM invocation
// handler: the single largest piece of node-type logic, since it wires
// the provider router, the global conversation, memory selection, and
// (optionally) the MCP tool registry together for one call.
type PersonJobHandler struct {
	Conversation *conversation.Conversation
	Router       *llm.Router
	Selector     conversation.Selector
	Tools        *tools.Registry
	MemoryCfg    config.MemoryConfig
	LLMCfg       config.LLMConfig
}

func NewPersonJobHandler(
	convo *conversation.Conversation,
	router *llm.Router,
	selector conversation.Selector,
	toolRegistry *tools.Registry,
	memoryCfg config.MemoryConfig,
	llmCfg config.LLMConfig,
) *PersonJobHandler {
	return &PersonJobHandler{
		Conversation: convo,
		Router:       router,
		Selector:     selector,
		Tools:        toolRegistry,
		MemoryCfg:    memoryCfg,
		LLMCfg:       llmCfg,
	}
}

func (h *PersonJobHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[PersonJobConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}
	if cfg.Person == "" {
		return domain.Envelope{}, h.fail(req, "person_job node missing person", nil)
	}
	personID := domain.PersonID(cfg.Person)
	spec, ok := req.Diagram.PersonByID(personID)
	if !ok {
		return domain.Envelope{}, h.fail(req, "unknown person "+cfg.Person, nil)
	}

	nodeState := req.State.NodeStateOf(req.Node.ID)
	prompt := h.resolvePrompt(cfg, nodeState.ExecutionCount)

	ectx := envelope.NewContext(req.State.Variables, inputVars(req), nil)
	renderer := envelope.Renderer{Strict: false}
	rendered, err := renderer.Render(prompt, ectx)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "rendering prompt", err)
	}

	// selectMemory never fails the node: a selector error downgrades to the
	// ignore-filtered candidate list (conversation.SelectMemories' own rule).
	history, cleared, _ := h.selectMemory(ctx, cfg, personID, rendered)

	messages := h.buildMessages(spec, history, rendered)

	toolSpecs, err := h.resolveTools(ctx, cfg)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "resolving tools", err)
	}

	completionReq := llm.CompletionRequest{
		Service:     spec.Service,
		Model:       spec.Model,
		ApiKeyID:    spec.ApiKeyID,
		Messages:    messages,
		Temperature: h.LLMCfg.PersonJobTemperature,
		MaxTokens:   h.LLMCfg.PersonJobMaxTokens,
		Tools:       toolSpecs,
	}
	result, err := h.Router.Complete(ctx, completionReq)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "llm completion failed", err)
	}

	var toolResults []map[string]any
	if len(result.ToolCalls) > 0 && h.Tools != nil {
		toolResults = h.dispatchToolCalls(ctx, result.ToolCalls)
	}

	h.Conversation.Append(domain.Message{From: domain.SystemPersonID, To: personID, Content: rendered, Type: domain.MessageTypeUser})
	h.Conversation.Append(domain.Message{From: personID, To: domain.SystemPersonID, Content: result.Content, Type: domain.MessageTypeAssistant})

	if cleared {
		h.Conversation.ClearInvolving(personID)
	}

	meta := map[string]any{
		"person_id":   string(personID),
		"model":       spec.Model,
		"token_usage": result.Usage,
	}

	env := h.buildOutputEnvelope(req, cfg, result, toolResults, personID)
	env.Meta = meta
	return env, nil
}

func (h *PersonJobHandler) resolvePrompt(cfg *PersonJobConfig, executionCount int) string {
	if executionCount == 0 {
		if cfg.ResolvedFirstPrompt != "" {
			return cfg.ResolvedFirstPrompt
		}
		if cfg.FirstOnlyPrompt != "" {
			return cfg.FirstOnlyPrompt
		}
	}
	if cfg.ResolvedPrompt != "" {
		return cfg.ResolvedPrompt
	}
	return cfg.DefaultPrompt
}

func (h *PersonJobHandler) selectMemory(ctx context.Context, cfg *PersonJobConfig, personID domain.PersonID, taskPreview string) (history []domain.Message, goldfish bool, err error) {
	criteria := cfg.MemorizeTo
	all := h.Conversation.All()

	view := h.Conversation.ViewFor(personID)
	if cfg.MemoryProfile != "" {
		view = conversation.ApplyProfile(all, personID, domain.MemoryProfile(strings.ToLower(cfg.MemoryProfile)))
	}

	if strings.TrimSpace(strings.ToUpper(criteria)) == "GOLDFISH" || strings.ToLower(cfg.MemoryProfile) == string(domain.MemoryProfileGoldfish) {
		return nil, true, nil
	}

	if criteria == "" {
		if cfg.AtMost > 0 && cfg.AtMost < len(view) {
			return view[len(view)-cfg.AtMost:], false, nil
		}
		return view, false, nil
	}

	selected, err := conversation.SelectMemories(ctx, view, taskPreview, criteria, cfg.IgnorePerson, cfg.AtMost, personID, h.Selector, h.MemoryCfg)
	return selected, false, err
}

func (h *PersonJobHandler) buildMessages(spec *domain.PersonSpec, history []domain.Message, prompt string) []domain.Message {
	messages := make([]domain.Message, 0, len(history)+2)
	if spec.SystemPrompt != "" {
		messages = append(messages, domain.Message{From: domain.SystemPersonID, To: spec.ID, Content: spec.SystemPrompt, Type: domain.MessageTypeSystem})
	}
	messages = append(messages, history...)
	messages = append(messages, domain.Message{From: domain.SystemPersonID, To: spec.ID, Content: prompt, Type: domain.MessageTypeUser})
	return messages
}

func (h *PersonJobHandler) resolveTools(ctx context.Context, cfg *PersonJobConfig) ([]llm.ToolSpec, error) {
	if len(cfg.Tools) == 0 || h.Tools == nil {
		return nil, nil
	}
	all, err := h.Tools.ToolSpecs(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		wanted[t.Name] = true
	}
	var filtered []llm.ToolSpec
	for _, spec := range all {
		if wanted[spec.Name] {
			filtered = append(filtered, spec)
		}
	}
	return filtered, nil
}

func (h *PersonJobHandler) dispatchToolCalls(ctx context.Context, calls []llm.ToolCall) []map[string]any {
	results := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		output, err := h.Tools.Call(ctx, call.Name, call.Arguments)
		entry := map[string]any{"tool": call.Name, "call_id": call.ID}
		if err != nil {
			entry["error"] = err.Error()
		} else {
			entry["result"] = output
		}
		results = append(results, entry)
	}
	return results
}

func (h *PersonJobHandler) buildOutputEnvelope(req handler.Request, cfg *PersonJobConfig, result llm.CompletionResult, toolResults []map[string]any, personID domain.PersonID) domain.Envelope {
	wantsConversation := false
	for _, edge := range req.Diagram.OutgoingEdges(req.Node.ID) {
		if edge.ContentType == domain.ContentConversation {
			wantsConversation = true
			break
		}
	}

	if wantsConversation {
		return domain.NewConversationEnvelope(req.Node.ID, req.ExecutionID, domain.ConversationSnapshot{
			Person:   personID,
			Messages: h.Conversation.ViewFor(personID),
		})
	}

	if cfg.TextFormat != "" {
		var parsed any
		if err := json.Unmarshal([]byte(result.Content), &parsed); err == nil {
			return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, parsed)
		}
	}

	if toolResults != nil {
		return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
			"content":      result.Content,
			"tool_results": toolResults,
		})
	}

	return domain.NewTextEnvelope(req.Node.ID, req.ExecutionID, result.Content)
}

func (h *PersonJobHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, true)
}
