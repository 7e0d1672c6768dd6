package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

func TestEndpointHandler_ShouldPassThroughDefaultInput_WhenPresent(t *testing.T) {
	h := EndpointHandler{}
	node := &domain.Node{ID: "end1", Type: domain.NodeTypeEndpoint}
	input := domain.NewTextEnvelope("upstream", "exec-1", "final answer")

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		Inputs:      map[string]domain.Envelope{"default": input},
	})

	require.NoError(t, err)
	assert.Equal(t, "final answer", env.Body)
	assert.Equal(t, domain.NodeID("end1"), env.ProducedBy)
}

func TestEndpointHandler_ShouldReturnEmptyObject_WhenNoDefaultInput(t *testing.T) {
	h := EndpointHandler{}
	node := &domain.Node{ID: "end1", Type: domain.NodeTypeEndpoint}

	env, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})

	require.NoError(t, err)
	assert.Equal(t, domain.ContentObject, env.ContentType)
	assert.Equal(t, map[string]any{}, env.Body)
}
