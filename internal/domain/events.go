package domain

import "time"

// EventType is the closed set of domain events the state manager can
// apply. Every mutation to an ExecutionState happens through one of these.
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
	EventNodeStarted        EventType = "node_started"
	EventNodeCompleted      EventType = "node_completed"
	EventNodeFailed         EventType = "node_failed"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventExecutionStarted, EventExecutionCompleted, EventExecutionFailed,
		EventNodeStarted, EventNodeCompleted, EventNodeFailed:
		return true
	default:
		return false
	}
}

// EventMeta carries the bookkeeping every DomainEvent needs regardless of
// payload: its position in the execution's log, when it was raised, and an
// optional correlation id for cross-execution tracing (sub-diagrams).
type EventMeta struct {
	Seq           int
	OccurredAt    time.Time
	CorrelationID string
}

// DomainEvent is an immutable fact raised by the engine or a handler and
// applied by the state manager to derive ExecutionState. Payload's concrete
// type is determined by Type:
//
//	EventExecutionStarted/Completed/Failed -> ExecutionEventPayload
//	EventNodeStarted/Completed/Failed      -> NodeEventPayload
type DomainEvent struct {
	Type        EventType
	ExecutionID ExecutionID
	Meta        EventMeta
	Payload     any
}

// ExecutionEventPayload is the payload for execution-scoped events.
type ExecutionEventPayload struct {
	DiagramID string
	Error     string
}

// NodeEventPayload is the payload for node-scoped events. A NodeCompleted
// event's Skipped/MaxIterReached flags select which terminal NodeStatus the
// state manager applies, since the closed event set has no dedicated event
// for those outcomes.
type NodeEventPayload struct {
	NodeID         NodeID
	Handle         string
	Error          string
	Envelope       *Envelope
	Usage          *TokenUsage
	Skipped        bool
	MaxIterReached bool
}
