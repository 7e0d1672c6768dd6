package builtin

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

func TestIrBuilderHandler_ShouldPreserveExistingDeclarations_WhenPresent(t *testing.T) {
	h := NewIrBuilderHandler()
	node := &domain.Node{ID: "ir1", Type: domain.NodeTypeIrBuilder, Data: map[string]any{}}

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		Inputs: map[string]domain.Envelope{
			"default": domain.NewObjectEnvelope("prev", "exec-1", map[string]any{
				"declarations": []any{map[string]any{"name": "Foo"}},
			}),
		},
	})

	require.NoError(t, err)
	body := env.Body.(map[string]any)
	decls := body["declarations"].([]any)
	assert.Len(t, decls, 1)
}

func TestIrBuilderHandler_ShouldFlattenMapIntoNamedDeclarations(t *testing.T) {
	h := NewIrBuilderHandler()
	node := &domain.Node{ID: "ir1", Type: domain.NodeTypeIrBuilder, Data: map[string]any{}}

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		Inputs: map[string]domain.Envelope{
			"default": domain.NewObjectEnvelope("prev", "exec-1", map[string]any{"widget": "gizmo"}),
		},
	})

	require.NoError(t, err)
	body := env.Body.(map[string]any)
	decls := body["declarations"].([]any)
	require.Len(t, decls, 1)
	entry := decls[0].(map[string]any)
	assert.Equal(t, "widget", entry["name"])
}

func TestIrBuilderHandler_ShouldEncodeAsYaml_WhenOutputFormatIsYaml(t *testing.T) {
	h := NewIrBuilderHandler()
	node := &domain.Node{ID: "ir1", Type: domain.NodeTypeIrBuilder, Data: map[string]any{"output_format": "yaml"}}

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		Inputs: map[string]domain.Envelope{
			"default": domain.NewObjectEnvelope("prev", "exec-1", map[string]any{"widget": "gizmo"}),
		},
	})

	require.NoError(t, err)
	text, ok := env.AsText()
	require.True(t, ok)
	assert.True(t, strings.Contains(text, "declarations:"))
}

func TestIrBuilderHandler_ShouldFail_WhenNoSourceInput(t *testing.T) {
	h := NewIrBuilderHandler()
	node := &domain.Node{ID: "ir1", Type: domain.NodeTypeIrBuilder, Data: map[string]any{}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}

func TestIrBuilderHandler_ShouldPassThroughUnchanged_WhenBuilderTypeNotCustom(t *testing.T) {
	h := NewIrBuilderHandler()
	node := &domain.Node{ID: "ir1", Type: domain.NodeTypeIrBuilder, Data: map[string]any{"builder_type": "backend"}}

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		Inputs: map[string]domain.Envelope{
			"default": domain.NewObjectEnvelope("prev", "exec-1", map[string]any{"raw": "passthrough"}),
		},
	})

	require.NoError(t, err)
	body := env.Body.(map[string]any)
	assert.Equal(t, "passthrough", body["raw"])
}
