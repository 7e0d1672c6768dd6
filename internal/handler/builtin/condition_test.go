package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/scheduler/condition"
)

func TestConditionHandler_ShouldEvaluateTrue_WhenInputSatisfiesExpression(t *testing.T) {
	h := NewConditionHandler(condition.NewEvaluator())
	node := &domain.Node{
		ID:   "cond1",
		Type: domain.NodeTypeCondition,
		Data: map[string]any{"expression": "score > 10"},
	}
	state := domain.NewExecutionState("exec-1", "diagram-1")

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		State:       state,
		Inputs: map[string]domain.Envelope{
			"default": domain.NewObjectEnvelope("prev", "exec-1", map[string]any{"score": 20}),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": true}, env.Body)
}

func TestConditionHandler_ShouldEvaluateFalse_WhenInputFailsExpression(t *testing.T) {
	h := NewConditionHandler(condition.NewEvaluator())
	node := &domain.Node{
		ID:   "cond1",
		Type: domain.NodeTypeCondition,
		Data: map[string]any{"expression": "score > 10"},
	}
	state := domain.NewExecutionState("exec-1", "diagram-1")

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		State:       state,
		Inputs: map[string]domain.Envelope{
			"default": domain.NewObjectEnvelope("prev", "exec-1", map[string]any{"score": 3}),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": false}, env.Body)
}

func TestConditionHandler_ShouldReturnHandlerError_WhenExpressionIsEmpty(t *testing.T) {
	h := NewConditionHandler(condition.NewEvaluator())
	node := &domain.Node{ID: "cond1", Type: domain.NodeTypeCondition, Data: map[string]any{}}
	state := domain.NewExecutionState("exec-1", "diagram-1")

	_, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		State:       state,
	})

	assert.Error(t, err)
}

func TestConditionHandler_ShouldSeeGlobalVariables_WhenNoMatchingInput(t *testing.T) {
	h := NewConditionHandler(condition.NewEvaluator())
	node := &domain.Node{
		ID:   "cond1",
		Type: domain.NodeTypeCondition,
		Data: map[string]any{"expression": "attempt >= 3"},
	}
	state := domain.NewExecutionState("exec-1", "diagram-1")
	state.Variables["attempt"] = 5

	env, err := h.Execute(context.Background(), handler.Request{
		ExecutionID: "exec-1",
		Node:        node,
		State:       state,
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": true}, env.Body)
}
