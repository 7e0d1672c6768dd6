package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/llm/tools"
)

func TestIntegratedApiHandler_ShouldFail_WhenProviderMissing(t *testing.T) {
	h := NewIntegratedApiHandler(tools.NewRegistry())
	node := &domain.Node{ID: "api1", Type: domain.NodeTypeIntegratedApi, Data: map[string]any{
		"operation": "send_message",
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}

func TestIntegratedApiHandler_ShouldFail_WhenOperationMissing(t *testing.T) {
	h := NewIntegratedApiHandler(tools.NewRegistry())
	node := &domain.Node{ID: "api1", Type: domain.NodeTypeIntegratedApi, Data: map[string]any{
		"provider": "slack",
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}

func TestIntegratedApiHandler_ShouldFail_WhenToolIsUnregistered(t *testing.T) {
	h := NewIntegratedApiHandler(tools.NewRegistry())
	node := &domain.Node{ID: "api1", Type: domain.NodeTypeIntegratedApi, Data: map[string]any{
		"provider":  "slack",
		"operation": "send_message",
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}
