// Package supervisor owns the table of live SessionRuntimes (spec §9's
// re-architecture of "per-session mutable engines held in module-level
// tables" into "an explicit SessionRuntime value owned by a supervisor").
// Callers refer to sessions by id; nothing outside this package ever
// imports a session singleton.
package supervisor

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sessionhouse/internal/audit"
	"sessionhouse/internal/metrics"
	"sessionhouse/internal/session"
)

// Supervisor owns the create/start/end/reap lifecycle of every session in
// the process.
type Supervisor struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	snapshotDepth int
	metrics       *metrics.Collector
	audit         *audit.Sink
	log           zerolog.Logger
}

func New(snapshotDepth int, m *metrics.Collector, a *audit.Sink, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		sessions:      make(map[string]*session.Session),
		snapshotDepth: snapshotDepth,
		metrics:       m,
		audit:         a,
		log:           log.With().Str("component", "supervisor").Logger(),
	}
}

// CreateSession instantiates a new Pending session from a lesson plan and
// class roster (spec §6's createSession).
func (sv *Supervisor) CreateSession(plan session.LessonPlan, roster []string) string {
	id := uuid.NewString()
	s := session.New(id, plan, roster, sv.snapshotDepth, sv.metrics, sv.audit, sv.log)

	sv.mu.Lock()
	sv.sessions[id] = s
	sv.mu.Unlock()

	if sv.metrics != nil {
		sv.metrics.SessionCreated()
	}
	sv.log.Info().Str("sessionID", id).Str("scenario", plan.ScenarioID).Msg("session created")
	return id
}

// Get returns the session for an id, for the transport layer to dispatch
// API calls against.
func (sv *Supervisor) Get(sessionID string) (*session.Session, error) {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	s, ok := sv.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	return s, nil
}

// Start/Pause/Resume/End proxy the matching session lifecycle calls,
// looking the session up by id first.
func (sv *Supervisor) Start(sessionID string) error {
	s, err := sv.Get(sessionID)
	if err != nil {
		return err
	}
	return s.Start()
}

func (sv *Supervisor) Pause(sessionID string) error {
	s, err := sv.Get(sessionID)
	if err != nil {
		return err
	}
	return s.Pause()
}

func (sv *Supervisor) Resume(sessionID string) error {
	s, err := sv.Get(sessionID)
	if err != nil {
		return err
	}
	return s.Resume()
}

func (sv *Supervisor) End(sessionID string) error {
	s, err := sv.Get(sessionID)
	if err != nil {
		return err
	}
	if err := s.End(); err != nil {
		return err
	}
	if sv.metrics != nil {
		sv.metrics.SessionEnded()
	}
	return nil
}

// Reap removes every terminal session from the table, releasing its
// engines for garbage collection. The transport layer calls this
// periodically rather than the supervisor driving its own timer, keeping
// this package free of background goroutines.
func (sv *Supervisor) Reap() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	n := 0
	for id, s := range sv.sessions {
		if s.State().IsTerminal() {
			delete(sv.sessions, id)
			n++
		}
	}
	return n
}

// ActiveCount reports how many sessions are currently tracked, terminal
// or not. The active_sessions gauge is kept separately: it drops on End,
// while the table keeps the session until Reap.
func (sv *Supervisor) ActiveCount() int {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return len(sv.sessions)
}
