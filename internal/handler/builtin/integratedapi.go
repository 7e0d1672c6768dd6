package builtin

import (
	"context"
	"encoding/json"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/llm/tools"
)

// IntegratedApiConfig is an integrated_api node's type-specific data. The
// provider and operation together name the MCP tool the node calls
// ("<provider>.<operation>"); config is passed through as the tool's
// JSON arguments, merged with the node's default input.
type IntegratedApiConfig struct {
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
}

// IntegratedApiHandler dispatches to an external provider (Notion, Slack,
// GitHub, and the rest) through the same MCP tool registry a PersonJob
// node's model-driven tool calls use, since both are ultimately a named
// call to a local MCP server process.
type IntegratedApiHandler struct {
	Tools *tools.Registry
}

func NewIntegratedApiHandler(registry *tools.Registry) *IntegratedApiHandler {
	return &IntegratedApiHandler{Tools: registry}
}

func (h *IntegratedApiHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[IntegratedApiConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}
	operation := stringField(req.Node.Data, "operation")
	if cfg.Provider == "" || operation == "" {
		return domain.Envelope{}, h.fail(req, "integrated_api node missing provider or operation", nil)
	}

	args := mergeInputData(req, cfg.Config)
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "marshaling tool arguments", err)
	}

	toolName := cfg.Provider + "." + operation
	result, err := h.Tools.Call(ctx, toolName, string(argsJSON))
	if err != nil {
		return domain.Envelope{}, h.fail(req, "calling integrated api", err)
	}

	var parsed any
	if jsonErr := json.Unmarshal([]byte(result), &parsed); jsonErr != nil {
		parsed = result
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{"result": parsed}), nil
}

func (h *IntegratedApiHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, true)
}
