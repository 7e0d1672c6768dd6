package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
)

type stubHandler struct {
	env domain.Envelope
}

func (s stubHandler) Execute(ctx context.Context, req Request) (domain.Envelope, error) {
	return s.env, nil
}

func TestRequest_Input_ShouldReturnBoundEnvelope_WhenHandlePresent(t *testing.T) {
	env := domain.NewTextEnvelope("n1", "exec-1", "hi")
	req := Request{Inputs: map[string]domain.Envelope{"default": env}}

	got, ok := req.Input("default")
	assert.True(t, ok)
	assert.Equal(t, env, got)
}

func TestRequest_Input_ShouldReturnFalse_WhenHandleAbsent(t *testing.T) {
	req := Request{Inputs: map[string]domain.Envelope{}}
	_, ok := req.Input("default")
	assert.False(t, ok)
}

func TestRequest_DefaultInput_ShouldLookUpDefaultHandle(t *testing.T) {
	env := domain.NewTextEnvelope("n1", "exec-1", "hi")
	req := Request{Inputs: map[string]domain.Envelope{"default": env}}

	got, ok := req.DefaultInput()
	assert.True(t, ok)
	assert.Equal(t, env, got)
}

func TestRegistry_For_ShouldReturnRegisteredHandler(t *testing.T) {
	reg := NewRegistry()
	h := stubHandler{env: domain.NewTextEnvelope("n1", "exec-1", "ok")}
	reg.Register(domain.NodeTypeStart, h)

	got, err := reg.For(domain.NodeTypeStart)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestRegistry_For_ShouldError_WhenNodeTypeUnregistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.For(domain.NodeTypeStart)
	assert.Error(t, err)
}

func TestRegistry_Register_ShouldOverwritePriorBinding(t *testing.T) {
	reg := NewRegistry()
	first := stubHandler{env: domain.NewTextEnvelope("n1", "exec-1", "first")}
	second := stubHandler{env: domain.NewTextEnvelope("n1", "exec-1", "second")}

	reg.Register(domain.NodeTypeStart, first)
	reg.Register(domain.NodeTypeStart, second)

	got, err := reg.For(domain.NodeTypeStart)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}
