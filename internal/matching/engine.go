// Package matching implements the per-session order matching engine:
// validation, price-time priority matching against the book, partial
// fills, stop triggering and time-in-force resolution (spec §4.2).
//
// An Engine is owned by exactly one session and is never accessed from
// more than one goroutine at a time — all serialization is provided by
// the session actor (spec §5), so this package holds no locks.
package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sessionhouse/internal/book"
	"sessionhouse/internal/common"
	"sessionhouse/internal/events"
	"sessionhouse/internal/metrics"
)

// Portfolio is the narrow collaborator interface the matching engine needs
// from the portfolio engine: enough to validate funds/short exposure and
// to apply a trade, but no ability to reach back into matching state. This
// is the "injected collaborator" re-architecture called for in spec §9.
type Portfolio interface {
	Snapshot(userID string) common.PortfolioSnapshot
	PositionQty(userID, securityID string) int64
	OnTrade(userID, securityID string, signedQty int64, price decimal.Decimal)
	OnMark(securityID string, price decimal.Decimal)
}

// Sink is the narrow publish interface the matching engine needs from the
// session's event bus.
type Sink interface {
	Publish(kind events.Kind, payload any)
}

// maxTriggerDepth bounds the stop-trigger recursion so a pathological
// chain of stops can never loop forever (spec §4.2: "bounded by the
// number of pending-trigger orders").
const maxTriggerDepth = 10_000

type Engine struct {
	SessionID  string
	AllowShort bool

	securities map[string]*common.Security
	books      map[string]*book.OrderBook
	triggers   map[string][]*common.Order // securityID -> pending stop/stop-limit orders
	live       map[string]*common.Order   // orderID -> order, for any non-terminal order

	marketOpen    bool
	running       bool
	triggerDepth  int

	portfolio Portfolio
	sink      Sink
	metrics   *metrics.Collector
	log       zerolog.Logger
}

// SetMetrics attaches a process-wide metrics collector. Optional: a nil
// collector (the default) makes every metrics call below a no-op.
func (e *Engine) SetMetrics(m *metrics.Collector) { e.metrics = m }

func New(sessionID string, portfolio Portfolio, sink Sink, log zerolog.Logger) *Engine {
	return &Engine{
		SessionID:  sessionID,
		securities: make(map[string]*common.Security),
		books:      make(map[string]*book.OrderBook),
		triggers:   make(map[string][]*common.Order),
		live:       make(map[string]*common.Order),
		portfolio:  portfolio,
		sink:       sink,
		log:        log.With().Str("sessionID", sessionID).Logger(),
	}
}

// RegisterSecurity adds a tradable security at session setup. Securities
// are immutable for the lifetime of the session thereafter.
func (e *Engine) RegisterSecurity(sec *common.Security) {
	e.securities[sec.ID] = sec
	e.books[sec.ID] = book.New(sec.ID)
	e.books[sec.ID].PublishLast(sec.StartPrice, 0, time.Now())
}

// SetRunning reflects the session's lifecycle state (InProgress vs not);
// consulted by Submit for the rejected-session failure mode. Switching it
// off also cancels every order still live (resting GTC orders and
// pending-trigger stops), so nothing outlives the session.
func (e *Engine) SetRunning(running bool) {
	e.running = running
	if running {
		return
	}
	for _, o := range e.live {
		e.cancelOrder(o)
	}
}

// Book exposes the read-only book for a security (for snapshots).
func (e *Engine) Book(securityID string) (*book.OrderBook, bool) {
	b, ok := e.books[securityID]
	return b, ok
}

// SecurityIDs returns every security registered in this session.
func (e *Engine) SecurityIDs() []string { return e.securityIDs() }

// LiveOrdersFor returns a value-copy snapshot of every non-terminal order
// belonging to userID, for subscription snapshots (spec §6's "own
// orders").
func (e *Engine) LiveOrdersFor(userID string) []common.Order {
	var out []common.Order
	for _, o := range e.live {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out
}

// MarketOpen reports whether the market is currently open.
func (e *Engine) MarketOpen() bool { return e.marketOpen }

// OpenMarket is idempotent; opening emits MarketOpened.
func (e *Engine) OpenMarket() {
	if e.marketOpen {
		return
	}
	e.marketOpen = true
	ids := e.securityIDs()
	e.publish(events.MarketOpened, events.MarketOpenedPayload{SecurityIDs: ids})
}

// CloseMarket is idempotent; closing emits MarketClosed and expires every
// resting Day order across every book (spec §4.2/§4.4).
func (e *Engine) CloseMarket() {
	if !e.marketOpen {
		return
	}
	e.marketOpen = false
	for secID, b := range e.books {
		e.expireDayOrders(secID, b)
	}
	e.publish(events.MarketClosed, events.MarketClosedPayload{SecurityIDs: e.securityIDs()})
}

func (e *Engine) securityIDs() []string {
	ids := make([]string, 0, len(e.securities))
	for id := range e.securities {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) expireDayOrders(secID string, b *book.OrderBook) {
	var expired []*common.Order
	for _, lvl := range b.AllLevels() {
		for _, o := range lvl.Orders {
			if o.TIF == common.Day {
				expired = append(expired, o)
			}
		}
	}
	for _, o := range expired {
		b.Remove(o.ID)
		o.Status = common.Cancelled
		o.CancelledAt = time.Now()
		delete(e.live, o.ID)
		e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *o})
	}
}

func (e *Engine) publish(kind events.Kind, payload any) {
	if e.sink != nil {
		e.sink.Publish(kind, payload)
	}
}

// Submit validates, (if applicable) matches and finalizes an order. The
// returned *common.Order is always non-nil and carries the final-or-
// intermediate Status; err is non-nil exactly when validation rejected the
// order. A fill-or-kill order that cannot be filled in full also comes back
// with Status == Rejected, but with a nil err.
func (e *Engine) Submit(order *common.Order) (*common.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Remaining = order.Quantity
	order.SubmittedAt = time.Now()
	order.ExchTimestamp = order.SubmittedAt
	order.Status = common.Pending

	if err := e.validate(order); err != nil {
		order.Status = common.Rejected
		order.RejectReason = err.Error()
		e.publish(events.OrderRejected, events.OrderRejectedPayload{Order: *order, Reason: err.Error()})
		if e.metrics != nil {
			e.metrics.OrdersRejected.Inc()
		}
		return order, err
	}
	if e.metrics != nil {
		e.metrics.OrdersSubmitted.Inc()
	}

	e.publish(events.OrderAccepted, events.OrderAcceptedPayload{Order: *order})

	if order.Type.HasStop() {
		order.Status = common.PendingTrigger
		e.triggers[order.SecurityID] = append(e.triggers[order.SecurityID], order)
		e.live[order.ID] = order
		e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *order})
		return order, nil
	}

	e.execute(order)
	return order, nil
}

func (e *Engine) validate(order *common.Order) error {
	sec, ok := e.securities[order.SecurityID]
	if !ok {
		return common.NewEngineError(common.ValidationError, "unknown security "+order.SecurityID, common.ErrUnknownSecurity)
	}
	if order.Quantity == 0 {
		return common.NewEngineError(common.ValidationError, "quantity must be positive", common.ErrInvalidQuantity)
	}
	if order.Type.IsPriced() && order.LimitPrice.IsZero() {
		return common.NewEngineError(common.ValidationError, "limit price required", common.ErrMissingLimitPrice)
	}
	if order.Type.HasStop() && order.StopPrice.IsZero() {
		return common.NewEngineError(common.ValidationError, "stop price required", common.ErrMissingStopPrice)
	}
	if !e.running {
		return common.NewEngineError(common.SessionStateError, "session not in-progress", common.ErrSessionNotRunning)
	}
	if !e.marketOpen && order.TIF != common.GoodTillCancelled {
		return common.NewEngineError(common.MarketClosedError, "market is closed", common.ErrMarketClosed)
	}
	if order.Side == common.Buy {
		cost := e.estimateBuyCost(sec, order)
		snap := e.portfolio.Snapshot(order.UserID)
		if cost.GreaterThan(snap.Cash) {
			return common.NewEngineError(common.LiquidityError, "insufficient funds", common.ErrInsufficientFunds)
		}
	} else if !e.AllowShort {
		have := e.portfolio.PositionQty(order.UserID, order.SecurityID)
		if have-int64(order.Quantity) < 0 {
			return common.NewEngineError(common.LiquidityError, "insufficient position to sell short", common.ErrInsufficientShares)
		}
	}
	if order.Type == common.MarketOrder {
		opp := order.Side.Opposite()
		if _, ok := e.books[order.SecurityID].Best(opp); !ok {
			return common.NewEngineError(common.LiquidityError, "no-liquidity", common.ErrNoLiquidity)
		}
	}
	return nil
}

// estimateBuyCost follows spec §4.2: limit price if given, else current
// best opposite price, else last mark.
func (e *Engine) estimateBuyCost(sec *common.Security, order *common.Order) decimal.Decimal {
	price := order.LimitPrice
	if price.IsZero() {
		b := e.books[order.SecurityID]
		if lvl, ok := b.Best(common.Sell); ok {
			price = lvl.Price
		} else {
			price = b.Snapshot(1).Last.Price
			if price.IsZero() {
				price = sec.StartPrice
			}
		}
	}
	return price.Mul(decimal.NewFromInt(int64(order.Quantity)))
}
