package observability

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/eventbus"
)

// ExecutionLogger drains an eventbus.Subscription and logs one structured
// line per DomainEvent, in the teacher's per-event-type formatting style
// (console_logger.go's formatEvent switch) but emitting zerolog fields
// instead of a fmt.Sprintf'd message.
type ExecutionLogger struct {
	log zerolog.Logger
}

// NewExecutionLogger binds an ExecutionLogger to a base logger; callers
// typically pass a logger already scoped with a "component" field.
func NewExecutionLogger(log zerolog.Logger) *ExecutionLogger {
	return &ExecutionLogger{log: log}
}

// Run drains sub until ctx is cancelled or the subscription closes,
// logging each event as it arrives. Intended to run in its own goroutine
// per execution (or once globally against a bus-wide subscription).
func (l *ExecutionLogger) Run(ctx context.Context, sub eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			l.logEvent(ev)
		}
	}
}

func (l *ExecutionLogger) logEvent(ev domain.DomainEvent) {
	base := l.log.Info().
		Str("execution_id", string(ev.ExecutionID)).
		Str("event_type", string(ev.Type)).
		Int("seq", ev.Meta.Seq)

	switch ev.Type {
	case domain.EventExecutionStarted, domain.EventExecutionCompleted, domain.EventExecutionFailed:
		p, _ := ev.Payload.(domain.ExecutionEventPayload)
		entry := base.Str("diagram_id", p.DiagramID)
		if p.Error != "" {
			entry = entry.Str("error", p.Error)
		}
		entry.Msg("execution event")
	case domain.EventNodeStarted, domain.EventNodeCompleted, domain.EventNodeFailed:
		p, _ := ev.Payload.(domain.NodeEventPayload)
		entry := base.Str("node_id", string(p.NodeID))
		if p.Handle != "" {
			entry = entry.Str("handle", p.Handle)
		}
		if p.Skipped {
			entry = entry.Bool("skipped", true)
		}
		if p.MaxIterReached {
			entry = entry.Bool("max_iter_reached", true)
		}
		if p.Error != "" {
			entry = entry.Str("error", p.Error)
		}
		entry.Msg("node event")
	default:
		base.Msg("event")
	}
}
