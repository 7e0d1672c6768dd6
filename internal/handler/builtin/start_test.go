package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

func TestStartHandler_ShouldSeedEnvelopeFromNodeData(t *testing.T) {
	h := StartHandler{}
	node := &domain.Node{ID: "start1", Type: domain.NodeTypeStart, Data: map[string]any{"topic": "rocks"}}

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ContentObject, env.ContentType)
	assert.Equal(t, map[string]any{"topic": "rocks"}, env.Body)
	assert.Equal(t, domain.NodeID("start1"), env.ProducedBy)
}

func TestStartHandler_ShouldReturnEmptyObject_WhenNodeDataIsNil(t *testing.T) {
	h := StartHandler{}
	node := &domain.Node{ID: "start1", Type: domain.NodeTypeStart}

	env, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, env.Body)
}
