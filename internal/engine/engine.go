// Package engine drives one diagram execution through the three-phase
// architecture the teacher's WorkflowEngine uses (Plan → Execute →
// Finalize, internal/application/executor/engine.go), with the middle
// phase reworked from static topological waves to a dynamic per-tick
// scheduler call: every iteration asks internal/scheduler what is ready
// right now, given the current event-sourced ExecutionState, rather than
// precomputing a fixed wave order up front.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/envelope"
	"github.com/dipeo/dipeo/internal/eventbus"
	"github.com/dipeo/dipeo/internal/handler"
	"github.com/dipeo/dipeo/internal/scheduler"
	"github.com/dipeo/dipeo/internal/statemanager"
)

// ErrorPolicy controls how the engine reacts to a node failure.
type ErrorPolicy int

const (
	// FailFast aborts the whole execution on the first node failure,
	// mirroring the teacher's domain.ErrorStrategyFailFast.
	FailFast ErrorPolicy = iota
	// ContinueIfIndependent keeps scheduling every node that does not
	// depend on a failed one; the execution still ends Failed, with the
	// first node error, once nothing more can run. Mirrors
	// domain.ErrorStrategyContinueOnError.
	ContinueIfIndependent
)

// EventStore persists an execution's DomainEvent log. A nil EventStore is
// valid — the engine then runs purely in memory, which is how a
// sub_diagram handler's recursive invocation is expected to run.
type EventStore interface {
	Append(ctx context.Context, executionID domain.ExecutionID, events []domain.DomainEvent) error
}

// Config tunes one Engine's behavior across every execution it drives.
type Config struct {
	MaxParallel      int
	NodeTimeout      time.Duration
	ExecutionTimeout time.Duration
	ErrorPolicy      ErrorPolicy
}

// DefaultConfig mirrors the defaults named in the concurrency model: 10-way
// node parallelism, a 5-minute per-node timeout, fail-fast on error.
func DefaultConfig() Config {
	return Config{
		MaxParallel: 10,
		NodeTimeout: 5 * time.Minute,
		ErrorPolicy: FailFast,
	}
}

// Engine drives diagram executions: ticking the scheduler, dispatching
// ready nodes to handlers with bounded parallelism, applying their
// envelopes as DomainEvents, and publishing the resulting event stream.
// An Engine is stateless between Run calls; all per-execution state lives
// in the statemanager.StateManager Run creates.
type Engine struct {
	Registry  *handler.Registry
	Scheduler *scheduler.Scheduler
	Bus       eventbus.EventBus
	Store     EventStore
	Cfg       Config
}

// New builds an Engine. bus may be eventbus.NullBus{} and store nil for a
// lightweight sub-diagram run that needs no external visibility.
func New(registry *handler.Registry, bus eventbus.EventBus, store EventStore, cfg Config) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 10
	}
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = 5 * time.Minute
	}
	return &Engine{
		Registry:  registry,
		Scheduler: scheduler.New(),
		Bus:       bus,
		Store:     store,
		Cfg:       cfg,
	}
}

// Run executes diagram to completion, failure, or cancellation and
// returns the final ExecutionState. Both a top-level execution and a
// sub_diagram handler's recursive call go through this one entry point.
func (e *Engine) Run(ctx context.Context, diagram *domain.CompiledDiagram, initialVariables map[string]any) (*domain.ExecutionState, error) {
	return e.RunWithID(ctx, domain.ExecutionID(uuid.New().String()), diagram, initialVariables)
}

// RunWithID is Run with the executionID assigned by the caller instead of
// generated internally, so a caller that must know the id before the run
// finishes (the REST trigger endpoint, which hands it back to the client
// immediately) does not have to race the event bus to learn it.
func (e *Engine) RunWithID(ctx context.Context, executionID domain.ExecutionID, diagram *domain.CompiledDiagram, initialVariables map[string]any) (*domain.ExecutionState, error) {
	sm := statemanager.New(executionID, diagram.ID)

	if len(initialVariables) > 0 {
		sm.SetVariables(initialVariables)
	}

	if e.Cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Cfg.ExecutionTimeout)
		defer cancel()
	}

	if _, err := sm.Apply(domain.EventExecutionStarted, domain.ExecutionEventPayload{DiagramID: diagram.ID}); err != nil {
		return nil, fmt.Errorf("starting execution: %w", err)
	}
	e.flush(ctx, sm)

	runErr := e.loop(ctx, diagram, sm)

	if runErr != nil {
		sm.Apply(domain.EventExecutionFailed, domain.ExecutionEventPayload{DiagramID: diagram.ID, Error: runErr.Error()})
	} else {
		sm.Apply(domain.EventExecutionCompleted, domain.ExecutionEventPayload{DiagramID: diagram.ID})
	}
	e.flush(ctx, sm)

	final := sm.Snapshot()
	return &final, runErr
}

// loop is Phase 2: Execute. It ticks the scheduler until the diagram
// reaches every endpoint, a node failure trips the error policy, or ctx
// is cancelled.
func (e *Engine) loop(ctx context.Context, diagram *domain.CompiledDiagram, sm *statemanager.StateManager) error {
	var firstFailure error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		state := sm.Snapshot()
		if e.Scheduler.ShouldTerminate(diagram, &state) {
			return firstFailure
		}

		ready := e.Scheduler.NextBatch(diagram, &state, e.Cfg.MaxParallel)
		if len(ready) == 0 {
			// Nothing is ready and the diagram has not reached its
			// endpoints: every remaining path is blocked behind a failed
			// or unreachable node, so there is nothing left to drive.
			return firstFailure
		}

		_, err := e.dispatchBatch(ctx, diagram, sm, ready)
		e.flush(ctx, sm)
		if err != nil {
			if e.Cfg.ErrorPolicy == FailFast {
				return err
			}
			if firstFailure == nil {
				firstFailure = err
			}
		}

		e.skipInactiveBranches(diagram, sm, ready)
		e.rearmLoops(diagram, sm)
	}
}

// dispatchBatch runs every ready node's handler concurrently, bounded by
// MaxParallel: a semaphore-gated goroutine per node and a WaitGroup
// barrier, generalizing the teacher's executeWave from a precomputed
// static wave to whatever the scheduler names ready this tick.
func (e *Engine) dispatchBatch(ctx context.Context, diagram *domain.CompiledDiagram, sm *statemanager.StateManager, ready []domain.NodeID) (failedCount int, firstErr error) {
	sem := make(chan struct{}, e.Cfg.MaxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, nodeID := range ready {
		wg.Add(1)
		sem <- struct{}{}
		go func(id domain.NodeID) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.executeNode(ctx, diagram, sm, id); err != nil {
				mu.Lock()
				failedCount++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(nodeID)
	}

	wg.Wait()
	return failedCount, firstErr
}

// executeNode binds one node's inputs, runs its handler under the
// configured per-node timeout, and raises the NodeStarted/NodeCompleted
// or NodeFailed event the state manager derives ExecutionState from.
func (e *Engine) executeNode(ctx context.Context, diagram *domain.CompiledDiagram, sm *statemanager.StateManager, nodeID domain.NodeID) error {
	node, ok := diagram.Node(nodeID)
	if !ok {
		return domainerr.NewNotFoundError("node", string(nodeID))
	}

	if _, err := sm.Apply(domain.EventNodeStarted, domain.NodeEventPayload{NodeID: nodeID}); err != nil {
		return err
	}

	state := sm.Snapshot()
	ns := state.NodeStateOf(nodeID)

	h, err := e.Registry.For(node.Type)
	if err != nil {
		sm.Apply(domain.EventNodeFailed, domain.NodeEventPayload{NodeID: nodeID, Error: err.Error()})
		return err
	}

	req := handler.Request{
		ExecutionID: state.ExecutionID,
		Node:        node,
		Diagram:     diagram,
		State:       &state,
		Inputs:      e.bindInputs(diagram, &state, node, ns),
		Iteration:   ns.ExecutionCount,
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Cfg.NodeTimeout)
	defer cancel()

	env, execErr := h.Execute(runCtx, req)
	if execErr != nil {
		sm.Apply(domain.EventNodeFailed, domain.NodeEventPayload{NodeID: nodeID, Error: execErr.Error()})
		return execErr
	}

	_, err = sm.Apply(domain.EventNodeCompleted, domain.NodeEventPayload{
		NodeID:   nodeID,
		Handle:   "default",
		Envelope: &env,
		Usage:    usageFromMeta(env),
	})
	return err
}

func usageFromMeta(env domain.Envelope) *domain.TokenUsage {
	if env.Meta == nil {
		return nil
	}
	usage, ok := env.Meta["token_usage"].(domain.TokenUsage)
	if !ok {
		return nil
	}
	return &usage
}

// bindInputs resolves every incoming edge of node into a named input
// envelope, applying the edge's transform pipeline and skipping a
// FirstExecutionOnly edge once the node has already completed once.
func (e *Engine) bindInputs(diagram *domain.CompiledDiagram, state *domain.ExecutionState, node *domain.Node, ns domain.NodeState) map[string]domain.Envelope {
	inputs := map[string]domain.Envelope{}
	for _, edge := range diagram.IncomingEdges(node.ID) {
		if edge.FirstExecutionOnly && ns.ExecutionCount > 0 {
			continue
		}
		src, ok := state.Envelopes[domain.EnvelopeKey(edge.Source, edge.SourceOutput)]
		if !ok {
			continue
		}
		inputs[edge.TargetInput] = envelope.Apply(src, edge)
	}
	return inputs
}

// skipInactiveBranches raises a NodeCompleted(Skipped) event for every
// node sitting on the branch a just-completed Condition node did not
// take, so the scheduler never waits on them.
func (e *Engine) skipInactiveBranches(diagram *domain.CompiledDiagram, sm *statemanager.StateManager, justRan []domain.NodeID) {
	for _, nodeID := range justRan {
		node, ok := diagram.Node(nodeID)
		if !ok || node.Type != domain.NodeTypeCondition {
			continue
		}
		state := sm.Snapshot()
		for _, skip := range e.Scheduler.BranchSkipTargets(diagram, &state, nodeID) {
			sm.Apply(domain.EventNodeCompleted, domain.NodeEventPayload{NodeID: skip, Skipped: true})
		}
	}
}

// rearmLoops transitions every Completed node whose dependencies were
// satisfied again since its last run back to Pending, or — for a
// PersonJob node whose max_iteration bound is exhausted — raises its
// MaxIterReached completion instead. This is the engine-side half of the
// COMPLETED -> PENDING transition the scheduler triggers for looping
// nodes.
func (e *Engine) rearmLoops(diagram *domain.CompiledDiagram, sm *statemanager.StateManager) {
	state := sm.Snapshot()
	for i := range diagram.Nodes {
		node := &diagram.Nodes[i]
		if !e.Scheduler.LoopReady(diagram, &state, node.ID) {
			continue
		}
		if node.Type == domain.NodeTypePersonJob {
			ns := state.NodeStateOf(node.ID)
			if ns.ExecutionCount >= scheduler.MaxIteration(node) {
				sm.Apply(domain.EventNodeCompleted, domain.NodeEventPayload{NodeID: node.ID, MaxIterReached: true})
				continue
			}
		}
		sm.ResetForLoop(node.ID)
	}
}

// flush persists and publishes every event raised since the last flush.
// A store failure is swallowed rather than aborting the run: durable
// persistence is an optional projection of the in-memory log, not the
// engine's primary source of truth.
func (e *Engine) flush(ctx context.Context, sm *statemanager.StateManager) {
	events := sm.UncommittedEvents()
	if len(events) == 0 {
		return
	}
	if e.Store != nil {
		_ = e.Store.Append(ctx, sm.Snapshot().ExecutionID, events)
	}
	sm.MarkCommitted()
	for _, ev := range events {
		e.Bus.Publish(ctx, ev)
	}
}
