package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
)

func nodeEvent(seq int) domain.DomainEvent {
	return domain.DomainEvent{
		Type:        domain.EventNodeStarted,
		ExecutionID: "exec-1",
		Meta:        domain.EventMeta{Seq: seq},
	}
}

func TestInProcessBus_ShouldDeliverEvent_WhenSubscriberHasRoom(t *testing.T) {
	bus := NewInProcessBus()
	sub := bus.Subscribe(4)
	defer sub.Close()

	bus.Publish(context.Background(), nodeEvent(1))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, 1, ev.Meta.Seq)
	default:
		t.Fatal("expected an event to be queued")
	}
	assert.Equal(t, 0, sub.Dropped())
}

func TestInProcessBus_ShouldFanOut_WhenMultipleSubscribersPresent(t *testing.T) {
	bus := NewInProcessBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	defer a.Close()
	defer b.Close()

	bus.Publish(context.Background(), nodeEvent(1))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestInProcessBus_ShouldDropOldestEvent_WhenSubscriberBufferIsFull(t *testing.T) {
	bus := NewInProcessBus()
	sub := bus.Subscribe(2)
	defer sub.Close()

	bus.Publish(context.Background(), nodeEvent(1))
	bus.Publish(context.Background(), nodeEvent(2))
	bus.Publish(context.Background(), nodeEvent(3))

	assert.Equal(t, 1, sub.Dropped())

	var seqs []int
	for i := 0; i < 2; i++ {
		ev := <-sub.Events()
		seqs = append(seqs, ev.Meta.Seq)
	}
	assert.Equal(t, []int{2, 3}, seqs)
}

func TestInProcessBus_ShouldStopDelivering_WhenSubscriptionClosed(t *testing.T) {
	bus := NewInProcessBus()
	sub := bus.Subscribe(4)
	sub.Close()

	bus.Publish(context.Background(), nodeEvent(1))

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed and drained")
}

func TestNullBus_ShouldDiscardPublishedEvents(t *testing.T) {
	bus := NullBus{}
	bus.Publish(context.Background(), nodeEvent(1))

	sub := bus.Subscribe(4)
	_, ok := <-sub.Events()
	assert.False(t, ok, "NullBus subscription channel should already be closed")
	assert.Equal(t, 0, sub.Dropped())
}
