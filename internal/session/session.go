// Package session implements the per-session state machine, scripted
// command timeline and privilege-gated order entry of spec §4.4. A
// Session owns exactly one matching.Engine, one portfolio.Engine, one
// eventbus.Bus and one privilege.Grants table. It serializes every call
// into the matching engine, portfolio and grants under its own mutex, so
// those three hold no locks (spec §5); the bus guards its subscriber table
// with a mutex of its own, because unsubscribe calls can arrive from
// connection goroutines outside the session lock.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"sessionhouse/internal/auction"
	"sessionhouse/internal/audit"
	"sessionhouse/internal/book"
	"sessionhouse/internal/common"
	"sessionhouse/internal/eventbus"
	"sessionhouse/internal/events"
	"sessionhouse/internal/liquidity"
	"sessionhouse/internal/matching"
	"sessionhouse/internal/metrics"
	"sessionhouse/internal/portfolio"
	"sessionhouse/internal/privilege"
)

// OrderSpec is the external request shape accepted by SubmitOrder, before
// it is turned into a common.Order (spec §6's submitOrder(..., orderSpec)).
type OrderSpec struct {
	SecurityID string
	Side       common.Side
	Type       common.OrderType
	Quantity   uint64
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	TIF        common.TimeInForce
}

// Snapshot is the consistent point-in-time view handed to a new
// subscriber alongside its event stream (spec §6: "snapshot includes
// visible book, own orders, own portfolio, market state, and privileges").
type Snapshot struct {
	SessionID  string
	State      State
	MarketOpen bool
	StartSeq   uint64
	Books      map[string]book.Snapshot
	OwnOrders  []common.Order
	Portfolio  common.PortfolioSnapshot
	Privileges []privilege.Code
}

type pendingTimer struct {
	cmd       ScriptedCommand
	fireAt    time.Time
	remaining time.Duration
	timer     *time.Timer
	done      bool
}

// Session owns one lesson's worth of live state: the state machine, the
// matching/portfolio engines, the event bus, privilege grants, the
// scripted timeline and any liquidity providers/auctions it has created.
type Session struct {
	ID     string
	Plan   LessonPlan
	Roster []string

	mu    sync.Mutex
	state State

	matching  *matching.Engine
	portfolio *portfolio.Engine
	bus       *eventbus.Bus
	grants    *privilege.Grants

	liquidityProviders map[string]*liquidity.Provider
	pendingAuction     *auction.Auction
	activeAuction      *auction.Auction

	timers []*pendingTimer

	snapshotDepth int
	metrics       *metrics.Collector
	audit         *audit.Sink

	t   tomb.Tomb
	log zerolog.Logger
}

const DefaultSnapshotDepth = 10

func New(id string, plan LessonPlan, roster []string, snapshotDepth int, m *metrics.Collector, a *audit.Sink, log zerolog.Logger) *Session {
	log = log.With().Str("sessionID", id).Logger()
	if snapshotDepth <= 0 {
		snapshotDepth = DefaultSnapshotDepth
	}

	bus := eventbus.New(id, eventbus.DefaultBufferSize, log)
	if m != nil {
		bus.OnSlowSubscriber(func(userID string) { m.SubscriberDisconnected(userID) })
	}
	pf := portfolio.New(id, plan.StartingCash, log)
	me := matching.New(id, pf, bus, log)
	me.AllowShort = plan.AllowShort
	me.SetMetrics(m)

	for _, spec := range plan.Securities {
		me.RegisterSecurity(&common.Security{
			ID:         spec.ID,
			Type:       spec.Type,
			TickSize:   spec.TickSize,
			StartPrice: spec.StartPrice,
		})
	}

	return &Session{
		ID:                 id,
		Plan:               plan,
		Roster:             roster,
		state:              Pending,
		matching:           me,
		portfolio:          pf,
		bus:                bus,
		grants:             privilege.NewGrants(),
		liquidityProviders: make(map[string]*liquidity.Provider),
		snapshotDepth:      snapshotDepth,
		metrics:            m,
		audit:              a,
		log:                log,
	}
}

// writeAudit appends one line to the session's audit tape, if one is
// configured (spec §6's persisted-state contract). Safe to call with a nil
// sink — every call site treats audit as optional.
func (s *Session) writeAudit(kind string, payload any) {
	if s.audit != nil {
		s.audit.Write(s.ID, kind, payload)
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start transitions Pending -> InProgress, schedules the lesson's timeline
// and the market-open delay (spec §4.4).
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Pending {
		return fmt.Errorf("session %s: start requires Pending, got %s", s.ID, s.state)
	}
	s.state = InProgress
	s.matching.SetRunning(true)
	s.publishState("start")

	now := time.Now()
	s.scheduleLocked(ScriptedCommand{Offset: s.Plan.MarketOpenDelay, Command: OpenMarket}, now)
	for _, cmd := range s.Plan.Timeline {
		s.scheduleLocked(cmd, now)
	}
	return nil
}

// Pause freezes the clock: every pending timer is stopped and its
// remaining duration recorded, but book/privileges/positions are
// untouched (spec §4.4).
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return fmt.Errorf("session %s: pause requires InProgress, got %s", s.ID, s.state)
	}
	s.state = Paused
	now := time.Now()
	for _, pt := range s.timers {
		if pt.done {
			continue
		}
		pt.timer.Stop()
		pt.remaining = pt.fireAt.Sub(now)
		if pt.remaining < 0 {
			pt.remaining = 0
		}
	}
	s.publishState("pause")
	return nil
}

// Resume restarts every pending timer with its residual duration (spec
// §4.4/§5).
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return fmt.Errorf("session %s: resume requires Paused, got %s", s.ID, s.state)
	}
	s.state = InProgress
	now := time.Now()
	for _, pt := range s.timers {
		if pt.done {
			continue
		}
		pt.fireAt = now.Add(pt.remaining)
		cmd := pt.cmd
		captured := pt
		pt.timer = time.AfterFunc(pt.remaining, func() { s.onTimerFire(captured, cmd) })
	}
	s.publishState("resume")
	return nil
}

// End executes end-commands (none modeled explicitly beyond closing the
// market) and transitions to Completed. GTC orders are purged here, not
// on pause/close (spec §9 Open Question 2).
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return fmt.Errorf("session %s: already terminal (%s)", s.ID, s.state)
	}
	s.cancelAllTimersLocked()
	s.matching.CloseMarket()
	s.matching.SetRunning(false)
	s.state = Completed
	s.publishState("end")
	s.t.Kill(nil)
	return nil
}

// Cancel transitions a Pending session straight to Cancelled (it never
// started, so there is nothing to tear down).
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Pending {
		return fmt.Errorf("session %s: cancel requires Pending, got %s", s.ID, s.state)
	}
	s.state = Cancelled
	s.publishState("cancel")
	s.t.Kill(nil)
	return nil
}

func (s *Session) cancelAllTimersLocked() {
	for _, pt := range s.timers {
		if !pt.done && pt.timer != nil {
			pt.timer.Stop()
		}
		pt.done = true
	}
}

func (s *Session) scheduleLocked(cmd ScriptedCommand, now time.Time) {
	pt := &pendingTimer{cmd: cmd, fireAt: now.Add(cmd.Offset), remaining: cmd.Offset}
	pt.timer = time.AfterFunc(cmd.Offset, func() { s.onTimerFire(pt, cmd) })
	s.timers = append(s.timers, pt)
}

// onTimerFire is the AfterFunc callback; it runs on its own goroutine, so
// it must take the lock like any other external entry point.
func (s *Session) onTimerFire(pt *pendingTimer, cmd ScriptedCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pt.done {
		return
	}
	pt.done = true
	// A timer firing in a non-runnable state is dropped (spec §5).
	if s.state != InProgress {
		s.log.Warn().Str("command", cmd.Command.String()).Msg("scripted timer fired while session not running, dropping")
		return
	}
	s.dispatchLocked(cmd)
}

func (s *Session) publishState(reason string) {
	s.bus.Publish(events.SessionStateChanged, events.SessionStateChangedPayload{Status: s.state.String()})
	s.writeAudit("session."+reason, map[string]string{"state": s.state.String()})
	s.log.Info().Str("reason", reason).Str("state", s.state.String()).Msg("session state changed")
}
