package pgeventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
)

func TestNewEventModel_ShouldSerializeExecutionEventPayload(t *testing.T) {
	ev := domain.DomainEvent{
		Type:        domain.EventExecutionStarted,
		ExecutionID: "exec-1",
		Meta: domain.EventMeta{
			Seq:           1,
			OccurredAt:    time.Unix(1700000000, 123000),
			CorrelationID: "corr-1",
		},
		Payload: domain.ExecutionEventPayload{DiagramID: "diagram-1"},
	}

	m, err := newEventModel("exec-1", ev)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", m.ExecutionID)
	assert.Equal(t, 1, m.Seq)
	assert.Equal(t, string(domain.EventExecutionStarted), m.Type)
	assert.Equal(t, "corr-1", m.CorrelationID)
	assert.Contains(t, string(m.Payload), "diagram-1")
}

func TestEventModel_ShouldRoundTripThroughToDomain_ForExecutionEvent(t *testing.T) {
	original := domain.DomainEvent{
		Type:        domain.EventExecutionFailed,
		ExecutionID: "exec-1",
		Meta: domain.EventMeta{
			Seq:           2,
			OccurredAt:    time.Unix(1700000001, 0),
			CorrelationID: "corr-2",
		},
		Payload: domain.ExecutionEventPayload{DiagramID: "diagram-1", Error: "boom"},
	}

	m, err := newEventModel(original.ExecutionID, original)
	require.NoError(t, err)

	rebuilt, err := m.toDomain(original.ExecutionID)
	require.NoError(t, err)

	assert.Equal(t, original.Type, rebuilt.Type)
	assert.Equal(t, original.Meta.Seq, rebuilt.Meta.Seq)
	assert.Equal(t, original.Meta.CorrelationID, rebuilt.Meta.CorrelationID)
	assert.Equal(t, original.Meta.OccurredAt.UnixNano(), rebuilt.Meta.OccurredAt.UnixNano())
	assert.Equal(t, original.Payload, rebuilt.Payload)
}

func TestEventModel_ShouldRoundTripThroughToDomain_ForNodeEvent(t *testing.T) {
	original := domain.DomainEvent{
		Type:        domain.EventNodeCompleted,
		ExecutionID: "exec-1",
		Meta: domain.EventMeta{
			Seq:        3,
			OccurredAt: time.Unix(1700000002, 0),
		},
		Payload: domain.NodeEventPayload{
			NodeID:  "node-1",
			Handle:  "default",
			Skipped: true,
		},
	}

	m, err := newEventModel(original.ExecutionID, original)
	require.NoError(t, err)

	rebuilt, err := m.toDomain(original.ExecutionID)
	require.NoError(t, err)

	payload, ok := rebuilt.Payload.(domain.NodeEventPayload)
	require.True(t, ok)
	assert.Equal(t, domain.NodeID("node-1"), payload.NodeID)
	assert.True(t, payload.Skipped)
}

func TestUnixNanoToTime_ShouldPreserveNanosecondPrecision(t *testing.T) {
	original := time.Unix(1700000000, 5000)
	converted := unixNanoToTime(original.UnixNano())
	assert.Equal(t, original.UnixNano(), converted.UnixNano())
}
