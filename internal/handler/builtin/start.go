package builtin

import (
	"context"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

// StartHandler seeds the diagram with its initial variables as a single
// Object envelope; it has no incoming edges so req.Inputs is always empty.
type StartHandler struct{}

func (StartHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	body := map[string]any{}
	for k, v := range req.Node.Data {
		body[k] = v
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, body), nil
}
