package builtin

import (
	"context"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// IrBuilderConfig is an ir_builder node's type-specific data. Only the
// "custom" builder type is implemented: it normalizes whatever structured
// source (AST, schema, or config data) arrives on the default input into
// a flat IR document of named declarations. The backend/frontend/
// strawberry code-generation backends are out of scope (codegen is an
// external collaborator), so builder_type values other than "custom" pass
// a map input through unchanged (any other input is wrapped as
// {"source": input}) rather than generating target-language code.
type IrBuilderConfig struct {
	BuilderType    string `json:"builder_type"`
	OutputFormat   string `json:"output_format"`
	ConfigPath     string `json:"config_path"`
	ValidateOutput bool   `json:"validate_output"`
}

type IrBuilderHandler struct{}

func NewIrBuilderHandler() *IrBuilderHandler {
	return &IrBuilderHandler{}
}

func (h *IrBuilderHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[IrBuilderConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	env, ok := req.DefaultInput()
	if !ok {
		return domain.Envelope{}, h.fail(req, "ir_builder node has no source input", nil)
	}

	var ir map[string]any
	switch cfg.BuilderType {
	case "custom", "":
		ir = buildCustomIR(env.Body)
	default:
		if body, ok := env.Body.(map[string]any); ok {
			ir = body
		} else {
			ir = map[string]any{"source": env.Body}
		}
	}

	if cfg.ValidateOutput && len(ir) == 0 {
		return domain.Envelope{}, h.fail(req, "ir_builder produced empty IR", nil)
	}

	format := cfg.OutputFormat
	if format == "" {
		format = "json"
	}
	if format == "yaml" {
		raw, err := yaml.Marshal(ir)
		if err != nil {
			return domain.Envelope{}, h.fail(req, "encoding ir as yaml", err)
		}
		if cfg.ConfigPath != "" {
			_ = os.WriteFile(cfg.ConfigPath, raw, 0o644)
		}
		return domain.NewTextEnvelope(req.Node.ID, req.ExecutionID, string(raw)), nil
	}

	if cfg.ConfigPath != "" {
		if raw, err := json.MarshalIndent(ir, "", "  "); err == nil {
			_ = os.WriteFile(cfg.ConfigPath, raw, 0o644)
		}
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, ir), nil
}

// buildCustomIR flattens an AST-shaped or schema-shaped source document
// into a map of named declarations, the shape every IR consumer in this
// node type expects regardless of which upstream node produced the data.
func buildCustomIR(source any) map[string]any {
	body, ok := source.(map[string]any)
	if !ok {
		return map[string]any{"declarations": []any{source}}
	}
	if decls, ok := body["declarations"]; ok {
		return map[string]any{"declarations": decls}
	}
	declarations := make([]any, 0, len(body))
	for name, value := range body {
		declarations = append(declarations, map[string]any{"name": name, "value": value})
	}
	return map[string]any{"declarations": declarations}
}

func (h *IrBuilderHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
