// Package audit is the fire-and-forget append-only sink the session
// supervisor tails into JSON-lines: order submissions and cancellations,
// executed scripted commands and session-state transitions, the concrete
// shape of spec §6's "Persisted state" contract. It never blocks a matching
// engine: Write enqueues onto a buffered channel and drops the record (with
// a logged warning) if the sink falls behind,
// matching the event bus's own at-most-once/never-block stance (spec §5).
package audit

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Record is one line of the audit tape.
type Record struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload"`
}

const defaultQueueSize = 4096

// Sink owns a single background goroutine that drains records to w as
// newline-delimited JSON. w must be non-nil; New(io.Discard, ...) gives
// every caller a working, inert sink.
type Sink struct {
	records chan Record
	done    chan struct{}
	log     zerolog.Logger
}

func New(w io.Writer, log zerolog.Logger) *Sink {
	s := &Sink{
		records: make(chan Record, defaultQueueSize),
		done:    make(chan struct{}),
		log:     log.With().Str("component", "audit").Logger(),
	}
	go s.run(w)
	return s
}

func (s *Sink) run(w io.Writer) {
	defer close(s.done)
	enc := json.NewEncoder(w)
	for rec := range s.records {
		if err := enc.Encode(rec); err != nil {
			s.log.Warn().Err(err).Msg("audit record dropped")
		}
	}
}

// Write enqueues a record, dropping it (with a logged warning) rather than
// blocking the caller if the sink's queue is full.
func (s *Sink) Write(sessionID, kind string, payload any) {
	select {
	case s.records <- Record{Time: time.Now(), SessionID: sessionID, Kind: kind, Payload: payload}:
	default:
		s.log.Warn().Str("sessionID", sessionID).Str("kind", kind).Msg("audit queue full, dropping record")
	}
}

// Close stops accepting new records and waits for the drain goroutine to
// flush what is already queued.
func (s *Sink) Close() {
	close(s.records)
	<-s.done
}
