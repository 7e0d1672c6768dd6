package builtin

import (
	"context"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

// EndpointHandler passes its default input through unchanged; the engine
// treats an Endpoint's completion as a termination signal, not this
// handler's logic.
type EndpointHandler struct{}

func (EndpointHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	if env, ok := req.DefaultInput(); ok {
		env.ProducedBy = req.Node.ID
		return env, nil
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{}), nil
}
