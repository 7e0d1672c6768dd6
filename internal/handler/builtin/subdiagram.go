package builtin

import (
	"context"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// SubDiagramConfig is a sub_diagram node's type-specific data.
type SubDiagramConfig struct {
	DiagramName    string         `json:"diagram_name"`
	DiagramData    map[string]any `json:"diagram_data"`
	InputMapping   map[string]any `json:"input_mapping"`
	OutputMapping  map[string]any `json:"output_mapping"`
	IsolateConvo   bool           `json:"isolate_conversation"`
	Batch          bool           `json:"batch"`
	BatchInputKey  string         `json:"batch_input_key"`
	BatchParallel  bool           `json:"batch_parallel"`
}

// Runner executes a nested diagram in lightweight mode (no observers, no
// event bus, isolated in-memory state) and returns its final variables.
// The engine supplies this at registry-construction time; handler/builtin
// cannot import internal/engine directly without an import cycle, since
// the engine depends on this package for dispatch.
type Runner func(ctx context.Context, diagramName string, diagramData map[string]any, inputs map[string]any) (map[string]any, error)

// SubDiagramHandler compiles and runs a nested diagram through the
// injected Runner, mapping this node's inputs/outputs across the
// boundary per input_mapping/output_mapping.
type SubDiagramHandler struct {
	Run Runner
}

func NewSubDiagramHandler(run Runner) *SubDiagramHandler {
	return &SubDiagramHandler{Run: run}
}

func (h *SubDiagramHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[SubDiagramConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}
	if cfg.DiagramName == "" && cfg.DiagramData == nil {
		return domain.Envelope{}, h.fail(req, "sub_diagram node missing diagram_name or diagram_data", nil)
	}

	inputs := mapInputs(req, cfg.InputMapping)

	if cfg.Batch {
		return h.runBatch(ctx, req, cfg, inputs)
	}

	outputs, err := h.Run(ctx, cfg.DiagramName, cfg.DiagramData, inputs)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "sub-diagram execution failed", err)
	}
	mapped := mapOutputs(outputs, cfg.OutputMapping)
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, mapped), nil
}

func (h *SubDiagramHandler) runBatch(ctx context.Context, req handler.Request, cfg *SubDiagramConfig, baseInputs map[string]any) (domain.Envelope, error) {
	key := cfg.BatchInputKey
	if key == "" {
		key = "items"
	}
	items, _ := baseInputs[key].([]any)
	results := make([]any, len(items))
	for i, item := range items {
		itemInputs := map[string]any{}
		for k, v := range baseInputs {
			itemInputs[k] = v
		}
		itemInputs["item"] = item
		outputs, err := h.Run(ctx, cfg.DiagramName, cfg.DiagramData, itemInputs)
		if err != nil {
			return domain.Envelope{}, h.fail(req, "batch sub-diagram execution failed", err)
		}
		results[i] = mapOutputs(outputs, cfg.OutputMapping)
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{"results": results}), nil
}

func mapInputs(req handler.Request, mapping map[string]any) map[string]any {
	source := inputVars(req)
	if len(mapping) == 0 {
		return source
	}
	mapped := map[string]any{}
	for targetKey, sourceKeyRaw := range mapping {
		sourceKey, ok := sourceKeyRaw.(string)
		if !ok {
			continue
		}
		if v, ok := source[sourceKey]; ok {
			mapped[targetKey] = v
		}
	}
	return mapped
}

func mapOutputs(outputs map[string]any, mapping map[string]any) map[string]any {
	if len(mapping) == 0 {
		return outputs
	}
	mapped := map[string]any{}
	for targetKey, sourceKeyRaw := range mapping {
		sourceKey, ok := sourceKeyRaw.(string)
		if !ok {
			continue
		}
		if v, ok := outputs[sourceKey]; ok {
			mapped[targetKey] = v
		}
	}
	return mapped
}

func (h *SubDiagramHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
