package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhouse/internal/events"
)

func newTestBus(bufferSize int) *Bus {
	return New("sess-1", bufferSize, zerolog.Nop())
}

func TestSubscribe_StartSeqReflectsPriorPublishes(t *testing.T) {
	b := newTestBus(8)

	b.Publish(events.MarketOpened, nil)
	b.Publish(events.MarketOpened, nil)

	startSeq, _, unsub := b.Subscribe("sub-1", "alice")
	defer unsub()

	assert.Equal(t, uint64(2), startSeq)
}

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	b := newTestBus(8)

	_, streamA, unsubA := b.Subscribe("sub-a", "alice")
	_, streamB, unsubB := b.Subscribe("sub-b", "bob")
	defer unsubA()
	defer unsubB()

	b.Publish(events.MarketOpened, nil)

	evtA := <-streamA
	evtB := <-streamB
	assert.Equal(t, events.MarketOpened, evtA.Kind)
	assert.Equal(t, events.MarketOpened, evtB.Kind)
	assert.Equal(t, uint64(1), evtA.Seq)
	assert.Equal(t, uint64(1), evtB.Seq)
}

type ownedPayload struct{ owner string }

func (p ownedPayload) OwnerUserID() string { return p.owner }

func TestPublish_OwnerGateHidesOtherUsersEvents(t *testing.T) {
	b := newTestBus(8)

	_, aliceStream, unsub := b.Subscribe("sub-alice", "alice")
	defer unsub()

	b.Publish(events.OrderUpdated, ownedPayload{owner: "bob"})
	b.Publish(events.OrderUpdated, ownedPayload{owner: "alice"})

	evt := <-aliceStream
	payload, ok := evt.Payload.(ownedPayload)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.owner)

	select {
	case extra := <-aliceStream:
		t.Fatalf("unexpected second event delivered to alice: %+v", extra)
	default:
	}
}

func TestPublish_OverflowDisconnectsSlowSubscriber(t *testing.T) {
	b := newTestBus(1)

	var notified string
	b.OnSlowSubscriber(func(userID string) { notified = userID })

	_, stream, unsub := b.Subscribe("sub-slow", "carol")
	defer unsub()

	b.Publish(events.MarketOpened, nil) // fills the buffer of size 1
	b.Publish(events.MarketOpened, nil) // overflows, disconnects carol

	assert.Equal(t, "carol", notified)
	assert.Equal(t, 0, b.SubscriberCount())

	// The terminal signal itself is delivered — a well-behaved client sees
	// why it was disconnected before the channel closes — even though it
	// displaced the stale buffered event that caused the overflow.
	evt, ok := <-stream
	require.True(t, ok, "the terminal event should still be readable")
	assert.Equal(t, events.SubscriberSlow, evt.Kind)
	payload, ok := evt.Payload.(events.SubscriberSlowPayload)
	require.True(t, ok)
	assert.Equal(t, "carol", payload.UserID)

	_, ok = <-stream
	assert.False(t, ok, "channel should be closed after disconnect")
}

func TestUnsubscribe_RemovesFromFanout(t *testing.T) {
	b := newTestBus(8)

	_, stream, unsub := b.Subscribe("sub-1", "dave")
	unsub()

	b.Publish(events.MarketOpened, nil)

	_, ok := <-stream
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}
