package builtin

import (
	"context"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// UserResponseConfig is a user_response node's type-specific data. There
// is no interactive transport wired into this module yet (the REST/WS
// surface is a trigger-and-stream shim, not a request/response prompt
// channel), so this handler resolves immediately from a configured
// default rather than suspending for real operator input.
type UserResponseConfig struct {
	Prompt       string `json:"prompt"`
	DefaultValue any    `json:"default_value"`
	Timeout      int    `json:"timeout"`
}

type UserResponseHandler struct{}

func NewUserResponseHandler() *UserResponseHandler {
	return &UserResponseHandler{}
}

func (h *UserResponseHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[UserResponseConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}

	if cfg.DefaultValue != nil {
		return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
			"prompt":   cfg.Prompt,
			"response": cfg.DefaultValue,
		}), nil
	}

	if env, ok := req.DefaultInput(); ok {
		return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
			"prompt":   cfg.Prompt,
			"response": env.Body,
		}), nil
	}

	return domain.Envelope{}, h.fail(req, "user_response node has no default_value or input and no interactive channel is wired", nil)
}

func (h *UserResponseHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
