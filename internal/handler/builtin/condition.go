package builtin

import (
	"context"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/envelope"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/scheduler/condition"
)

// ConditionConfig is a condition node's type-specific data.
type ConditionConfig struct {
	Expression string `json:"expression"`
}

// ConditionHandler evaluates its node's boolean expression against the
// flattened inputs and global variables, producing an Object envelope
// whose body is {"result": <bool>} on the node's "default" handle. The scheduler reads this
// envelope's Body to determine which branch (condtrue/condfalse) is
// active for downstream edges.
type ConditionHandler struct {
	Evaluator *condition.Evaluator
}

func NewConditionHandler(evaluator *condition.Evaluator) *ConditionHandler {
	return &ConditionHandler{Evaluator: evaluator}
}

func (h *ConditionHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[ConditionConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), 0, err.Error(), err, false)
	}

	vars := map[string]any{}
	for _, env := range req.Inputs {
		if body, ok := env.Body.(map[string]any); ok {
			for k, v := range body {
				vars[k] = v
			}
		}
	}
	vars["inputs"] = req.Inputs
	vars["variables"] = req.State.Variables
	for k, v := range req.State.Variables {
		vars[k] = v
	}

	ectx := envelope.NewContext(req.State.Variables, vars, nil)
	result, err := h.Evaluator.Evaluate(cfg.Expression, ectx.Flatten())
	if err != nil {
		return domain.Envelope{}, domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), 0, err.Error(), err, false)
	}

	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{"result": result}), nil
}
