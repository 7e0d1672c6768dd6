// Package statemanager derives ExecutionState by event sourcing: every
// mutation is expressed as a domain.DomainEvent, applied through a single
// internal reducer so the log and the snapshot can never drift apart.
//
// A StateManager owns exactly one execution's state and log. Every method
// takes sm.mu, so commands and snapshots may be issued from several
// goroutines at once.
package statemanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
)

// StateManager is the event-sourced aggregate for one execution.
type StateManager struct {
	mu sync.RWMutex

	state *domain.ExecutionState
	log   []domain.DomainEvent

	uncommitted []domain.DomainEvent
}

// New starts a fresh StateManager with no events applied.
func New(executionID domain.ExecutionID, diagramID string) *StateManager {
	return &StateManager{state: domain.NewExecutionState(executionID, diagramID)}
}

// RebuildFromLog reconstructs a StateManager by replaying a complete event
// log in order, as recorded by an EventStore.
func RebuildFromLog(executionID domain.ExecutionID, diagramID string, events []domain.DomainEvent) (*StateManager, error) {
	sm := New(executionID, diagramID)
	for _, ev := range events {
		if err := sm.applyInternal(ev); err != nil {
			return nil, fmt.Errorf("replaying event seq %d: %w", ev.Meta.Seq, err)
		}
		sm.log = append(sm.log, ev)
	}
	return sm, nil
}

// Snapshot returns an immutable, independent copy of the current
// ExecutionState: every map is deep-copied so a handler dispatched against
// this snapshot never touches memory the reducer is concurrently mutating
// under sm.mu as sibling handlers complete.
func (sm *StateManager) Snapshot() domain.ExecutionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Clone()
}

// NodeState returns the current projection for a single node.
func (sm *StateManager) NodeState(id domain.NodeID) domain.NodeState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.NodeStateOf(id)
}

// Status returns the execution's current lifecycle status.
func (sm *StateManager) Status() domain.ExecutionStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Status
}

// EventsSince returns every event applied with Meta.Seq strictly greater
// than seq, in application order.
func (sm *StateManager) EventsSince(seq int) []domain.DomainEvent {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]domain.DomainEvent, 0, len(sm.log))
	for _, ev := range sm.log {
		if ev.Meta.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// UncommittedEvents returns events raised since the last MarkCommitted
// call, for a pluggable EventStore to persist.
func (sm *StateManager) UncommittedEvents() []domain.DomainEvent {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]domain.DomainEvent, len(sm.uncommitted))
	copy(out, sm.uncommitted)
	return out
}

// MarkCommitted clears the uncommitted buffer after a successful persist.
func (sm *StateManager) MarkCommitted() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.uncommitted = sm.uncommitted[:0]
}

// Apply raises a new event: it runs the reducer, appends to the log, and
// stamps Meta.Seq/OccurredAt. Apply is the only way a command may mutate
// state.
func (sm *StateManager) Apply(eventType domain.EventType, payload any) (domain.DomainEvent, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ev := domain.DomainEvent{
		Type:        eventType,
		ExecutionID: sm.state.ExecutionID,
		Meta: domain.EventMeta{
			Seq:        len(sm.log) + 1,
			OccurredAt: now(),
		},
		Payload: payload,
	}
	if err := sm.applyInternal(ev); err != nil {
		return domain.DomainEvent{}, err
	}
	sm.log = append(sm.log, ev)
	sm.uncommitted = append(sm.uncommitted, ev)
	return ev, nil
}

// Clear resets all node and conversation-adjacent state for GOLDFISH-style
// cleanup. It mutates state directly, outside the reducer and the event log;
// nothing in the engine calls it.
func (sm *StateManager) Clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.NodeStates = map[domain.NodeID]domain.NodeState{}
	sm.state.Envelopes = map[string]domain.Envelope{}
	sm.state.ExecCounts = map[domain.NodeID]int{}
	sm.state.ExecutedNodes = nil
}

// SetVariables seeds the execution's global variable namespace, used once
// by the engine at start-up from the caller's initial input. Like Clear()
// and ResetForLoop, this is a direct mutation rather than a DomainEvent:
// the initial variable set is an input to the execution, not a fact
// raised during it.
func (sm *StateManager) SetVariables(vars map[string]any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for k, v := range vars {
		sm.state.Variables[k] = v
	}
}

// ResetForLoop transitions a Completed looping node back to Pending so
// the scheduler can select it again, mirroring Clear(): a direct state
// mutation outside the event log, since the closed event set has no
// dedicated "loop re-arm" event and spec describes this transition as
// the scheduler re-readying a node rather than a new domain fact.
func (sm *StateManager) ResetForLoop(id domain.NodeID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ns := sm.state.NodeStateOf(id)
	ns.Status = domain.NodeStatusPending
	sm.state.NodeStates[id] = ns
}

func (sm *StateManager) applyInternal(ev domain.DomainEvent) error {
	if !ev.Type.IsValid() {
		return domainerr.NewCompileError("", "", "event_type", fmt.Sprintf("unknown event type %q", ev.Type))
	}
	sm.state.Version++

	switch ev.Type {
	case domain.EventExecutionStarted:
		p := ev.Payload.(domain.ExecutionEventPayload)
		sm.state.Status = domain.ExecutionStatusRunning
		sm.state.DiagramID = p.DiagramID
		sm.state.StartedAt = ev.Meta.OccurredAt
	case domain.EventExecutionCompleted:
		sm.state.Status = domain.ExecutionStatusCompleted
		t := ev.Meta.OccurredAt
		sm.state.EndedAt = &t
	case domain.EventExecutionFailed:
		p := ev.Payload.(domain.ExecutionEventPayload)
		sm.state.Status = domain.ExecutionStatusFailed
		sm.state.Error = p.Error
		t := ev.Meta.OccurredAt
		sm.state.EndedAt = &t
	case domain.EventNodeStarted:
		p := ev.Payload.(domain.NodeEventPayload)
		ns := sm.state.NodeStateOf(p.NodeID)
		ns.Status = domain.NodeStatusRunning
		t := ev.Meta.OccurredAt
		ns.StartedAt = &t
		sm.state.NodeStates[p.NodeID] = ns
	case domain.EventNodeCompleted:
		p := ev.Payload.(domain.NodeEventPayload)
		ns := sm.state.NodeStateOf(p.NodeID)
		switch {
		case p.Skipped:
			ns.Status = domain.NodeStatusSkipped
		case p.MaxIterReached:
			ns.Status = domain.NodeStatusMaxIterReached
			ns.CompletedAtSeq = ev.Meta.Seq
		default:
			ns.Status = domain.NodeStatusCompleted
			ns.ExecutionCount++
			ns.CompletedAtSeq = ev.Meta.Seq
		}
		t := ev.Meta.OccurredAt
		ns.EndedAt = &t
		if p.Envelope != nil {
			if ns.LastOutput == nil {
				ns.LastOutput = map[string]domain.Envelope{}
			}
			ns.LastOutput[p.Handle] = *p.Envelope
			sm.state.Envelopes[domain.EnvelopeKey(p.NodeID, p.Handle)] = *p.Envelope
		}
		if p.Usage != nil {
			ns.TokenUsage.Add(*p.Usage)
			sm.state.TotalUsage.Add(*p.Usage)
		}
		sm.state.NodeStates[p.NodeID] = ns
		sm.state.ExecCounts[p.NodeID] = ns.ExecutionCount
		sm.state.ExecutedNodes = append(sm.state.ExecutedNodes, p.NodeID)
	case domain.EventNodeFailed:
		p := ev.Payload.(domain.NodeEventPayload)
		ns := sm.state.NodeStateOf(p.NodeID)
		ns.Status = domain.NodeStatusFailed
		ns.Error = p.Error
		t := ev.Meta.OccurredAt
		ns.EndedAt = &t
		sm.state.NodeStates[p.NodeID] = ns
	}
	return nil
}

// now is overridable in tests; production code always uses wall time.
var now = func() time.Time { return time.Now() }
