// Package eventbus implements the per-session typed publish/subscribe
// fanout described in spec §4.5: strict per-subscriber ordering, bounded
// buffering, at-most-once delivery, and disconnect-on-overflow rather than
// ever blocking the session actor that is publishing.
package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sessionhouse/internal/events"
)

// Gate decides whether a subscriber may see a given event. The default
// gate enforces ownership (ownership-scoped payloads are only delivered to
// their owner); a session may layer additional privilege checks on top for
// market-data families (spec §4.5: "filtered by the user's privileges").
type Gate interface {
	Visible(userID string, evt events.Event) bool
}

type ownerGate struct{}

func (ownerGate) Visible(userID string, evt events.Event) bool {
	owned, ok := evt.Payload.(events.Owned)
	if !ok {
		return true
	}
	return owned.OwnerUserID() == userID
}

// subscriber is one bounded outbound queue. Reads come from Stream(); a
// full queue is the only way a subscriber ever gets disconnected.
type subscriber struct {
	id     string
	userID string
	ch     chan events.Event
	closed bool
}

// Bus fans events out to every current subscriber of one session. Publish
// must only ever be called from that session's single actor goroutine
// (spec §5); Subscribe/Unsubscribe may be called from other goroutines
// handling client connections, so the subscriber table is guarded by a
// mutex distinct from the session's serial execution.
type Bus struct {
	sessionID  string
	bufferSize int
	gate       Gate
	onSlow     func(userID string)

	mu   sync.Mutex
	seq  uint64
	subs map[string]*subscriber

	log zerolog.Logger
}

const DefaultBufferSize = 256

func New(sessionID string, bufferSize int, log zerolog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		sessionID:  sessionID,
		bufferSize: bufferSize,
		gate:       ownerGate{},
		subs:       make(map[string]*subscriber),
		log:        log.With().Str("sessionID", sessionID).Logger(),
	}
}

// SetGate overrides the default ownership-only gate.
func (b *Bus) SetGate(g Gate) { b.gate = g }

// OnSlowSubscriber registers a callback invoked (from Publish's goroutine)
// whenever a subscriber is disconnected for falling behind. The session
// uses it to record the disconnect in the metrics collector; the
// subscriber-slow event itself is sent by the bus to the disconnected
// subscriber before its channel closes.
func (b *Bus) OnSlowSubscriber(fn func(userID string)) { b.onSlow = fn }

// Subscribe registers a new bounded stream for userID and returns the
// sequence number of the last event already published (0 if none); the
// stream delivers only events with a greater sequence number. An
// unsubscribe func is returned with it.
// Callers must build their snapshot while still holding the session
// actor's serial execution, between acquiring this sequence number and
// returning, so the snapshot is guaranteed consistent with the stream
// (spec §4.5 "Snapshot+delta").
func (b *Bus) Subscribe(subscriptionID, userID string) (startSeq uint64, stream <-chan events.Event, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{id: subscriptionID, userID: userID, ch: make(chan events.Event, b.bufferSize)}
	b.subs[subscriptionID] = sub
	return b.seq, sub.ch, func() { b.unsubscribe(subscriptionID) }
}

func (b *Bus) unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[subscriptionID]; ok {
		b.closeLocked(sub)
		delete(b.subs, subscriptionID)
	}
}

func (b *Bus) closeLocked(sub *subscriber) {
	if !sub.closed {
		close(sub.ch)
		sub.closed = true
	}
}

// Publish assigns the next sequence number, stamps the event, and fans it
// out to every subscriber currently allowed to see it. Delivery is
// non-blocking per subscriber: a full buffer disconnects that subscriber,
// delivering a SubscriberSlow event as its last message before the channel
// closes, rather than ever blocking the caller — the session actor's
// critical path must never stall on a slow reader (spec §5).
func (b *Bus) Publish(kind events.Kind, payload any) {
	b.mu.Lock()
	b.seq++
	evt := events.Event{Seq: b.seq, SessionID: b.sessionID, Kind: kind, Timestamp: time.Now(), Payload: payload}
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if !b.gate.Visible(sub.userID, evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.disconnectSlow(sub)
		}
	}
}

func (b *Bus) disconnectSlow(sub *subscriber) {
	b.mu.Lock()
	_, stillRegistered := b.subs[sub.id]
	if stillRegistered {
		delete(b.subs, sub.id)
	}
	b.seq++
	evt := events.Event{
		Seq:       b.seq,
		SessionID: b.sessionID,
		Kind:      events.SubscriberSlow,
		Timestamp: time.Now(),
		Payload:   events.SubscriberSlowPayload{UserID: sub.userID},
	}
	b.mu.Unlock()

	if !stillRegistered {
		return
	}

	// The buffer is full; drop the oldest queued event to make room so the
	// terminal signal is never itself lost to the overflow it is reporting.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- evt:
	default:
	}

	b.mu.Lock()
	b.closeLocked(sub)
	b.mu.Unlock()

	b.log.Warn().Str("userID", sub.userID).Msg("subscriber buffer overflow, disconnecting")
	if b.onSlow != nil {
		b.onSlow(sub.userID)
	}
}

// SubscriberCount reports how many live subscribers the bus currently has,
// for metrics and supervisor introspection.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Seq returns the most recently assigned sequence number.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
