package builtin

import (
	"context"
	"os"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/envelope"
	"github.com/dipeo/dipeo/internal/handler"
)

// TemplateJobConfig is a template_job node's type-specific data. The
// jinja2 engine option is accepted but rendered with the same {{var}}
// placeholder syntax as internal, since this repo's dependency set has
// no jinja2-compatible templating library; only the subset of jinja2
// templates that reduce to plain variable substitution will render
// correctly.
type TemplateJobConfig struct {
	TemplatePath    string         `json:"template_path"`
	TemplateContent string         `json:"template_content"`
	OutputPath      string         `json:"output_path"`
	Variables       map[string]any `json:"variables"`
	Engine          string         `json:"engine"`
}

type TemplateJobHandler struct {
	renderer envelope.Renderer
}

func NewTemplateJobHandler() *TemplateJobHandler {
	return &TemplateJobHandler{renderer: envelope.Renderer{Strict: false}}
}

func (h *TemplateJobHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[TemplateJobConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	content := cfg.TemplateContent
	if content == "" && cfg.TemplatePath != "" {
		raw, err := os.ReadFile(cfg.TemplatePath)
		if err != nil {
			return domain.Envelope{}, h.fail(req, "reading template file", err)
		}
		content = string(raw)
	}
	if content == "" {
		return domain.Envelope{}, h.fail(req, "template_job node has no template content or path", nil)
	}

	vars := inputVars(req)
	for k, v := range cfg.Variables {
		vars[k] = v
	}
	ectx := envelope.NewContext(req.State.Variables, vars, nil)

	rendered, err := h.renderer.Render(content, ectx)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "rendering template", err)
	}

	if cfg.OutputPath != "" {
		if err := os.WriteFile(cfg.OutputPath, []byte(rendered), 0o644); err != nil {
			return domain.Envelope{}, h.fail(req, "writing template output", err)
		}
	}

	return domain.NewTextEnvelope(req.Node.ID, req.ExecutionID, rendered), nil
}

func (h *TemplateJobHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
