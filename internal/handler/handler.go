// Package handler defines the contract every node-type executor implements
// and a registry the engine dispatches through. Unlike the teacher's
// NodeExecutor (which reads/writes a shared ExecutionContext), a Handler
// is a pure function from a Request (resolved inputs, as of the current
// tick) to a single output Envelope: all state mutation happens afterward,
// through the events the engine raises from that Envelope.
package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo/internal/domain"
)

// Request bundles everything a handler needs to produce a node's output
// for one execution tick. Inputs is keyed by the node's own input handle
// name ("default" unless the diagram names it), already transformed per
// the incoming edge's TransformRules.
type Request struct {
	ExecutionID domain.ExecutionID
	Node        *domain.Node
	Diagram     *domain.CompiledDiagram
	State       *domain.ExecutionState
	Inputs      map[string]domain.Envelope
	Iteration   int // NodeState.ExecutionCount before this call; 0 on first run
}

// Input returns the envelope bound to handle, or ok=false if the node has
// no incoming edge targeting it.
func (r Request) Input(handle string) (domain.Envelope, bool) {
	env, ok := r.Inputs[handle]
	return env, ok
}

// DefaultInput is a convenience for the common single-input case.
func (r Request) DefaultInput() (domain.Envelope, bool) {
	return r.Input("default")
}

// Handler produces one node type's output envelope for a single tick. A
// PersonJob handler may be called again on a later tick (its own
// max_iteration loop); the engine treats every call as one discrete step.
type Handler interface {
	Execute(ctx context.Context, req Request) (domain.Envelope, error)
}

// Registry dispatches a node's declared NodeType to its Handler.
type Registry struct {
	handlers map[domain.NodeType]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[domain.NodeType]Handler{}}
}

// Register binds a Handler to a NodeType, overwriting any prior binding.
func (r *Registry) Register(t domain.NodeType, h Handler) {
	r.handlers[t] = h
}

// For looks up the Handler for a NodeType.
func (r *Registry) For(t domain.NodeType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for node type %q", t)
	}
	return h, nil
}
