// Package common holds the data model shared by every session-scoped
// engine: securities, orders, trades, positions and portfolios. Nothing in
// this package mutates; it is the vocabulary the book, matching, portfolio
// and session packages are all built from.
package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType classifies a Security. Kept narrow on purpose: the simulation
// does not model settlement or contract specs, only enough to route
// validation (e.g. options/futures could later gain distinct tick rules).
type AssetType int

const (
	Equity AssetType = iota
	Bond
	Option
	Future
)

func (a AssetType) String() string {
	switch a {
	case Equity:
		return "EQUITY"
	case Bond:
		return "BOND"
	case Option:
		return "OPTION"
	case Future:
		return "FUTURE"
	default:
		return "UNKNOWN"
	}
}

// Side is which side of the book an order rests or takes on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for Buy, -1 for Sell. Used throughout the portfolio
// engine's signed-quantity arithmetic.
func (s Side) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

// OrderType is the execution semantics requested for an order.
type OrderType int

const (
	// Market orders take liquidity immediately at the best available
	// price(s); they never rest.
	MarketOrder OrderType = iota
	// Limit orders rest on the book until filled, cancelled or expired,
	// executing only at their limit price or better.
	LimitOrder
	// Stop orders are dormant until the last trade price crosses the
	// stop price, at which point they become market orders.
	StopOrder
	// StopLimit orders are dormant until triggered, at which point they
	// become limit orders at LimitPrice.
	StopLimitOrder
)

func (t OrderType) String() string {
	switch t {
	case MarketOrder:
		return "MARKET"
	case LimitOrder:
		return "LIMIT"
	case StopOrder:
		return "STOP"
	case StopLimitOrder:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// IsPriced reports whether the order type requires a LimitPrice.
func (t OrderType) IsPriced() bool {
	return t == LimitOrder || t == StopLimitOrder
}

// HasStop reports whether the order type requires a StopPrice.
func (t OrderType) HasStop() bool {
	return t == StopOrder || t == StopLimitOrder
}

// TimeInForce governs how long an order's residual quantity may live.
type TimeInForce int

const (
	Day TimeInForce = iota
	ImmediateOrCancel
	FillOrKill
	GoodTillCancelled
)

func (tif TimeInForce) String() string {
	switch tif {
	case Day:
		return "DAY"
	case ImmediateOrCancel:
		return "IOC"
	case FillOrKill:
		return "FOK"
	case GoodTillCancelled:
		return "GTC"
	default:
		return "UNKNOWN"
	}
}

// RestsOnBook reports whether a residual quantity of this TIF is allowed
// to sit on the book at all (IOC/FOK never rest).
func (tif TimeInForce) RestsOnBook() bool {
	return tif == Day || tif == GoodTillCancelled
}

// OrderStatus is the lifecycle state of an order. Filled, Cancelled and
// Rejected are terminal and sticky: once reached, status never changes
// again.
type OrderStatus int

const (
	Pending OrderStatus = iota
	PendingTrigger
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case PendingTrigger:
		return "PENDING_TRIGGER"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status is sticky (Filled/Cancelled/Rejected).
func (s OrderStatus) IsTerminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// RestsOnBook reports whether an order with this status may currently
// appear in an OrderBook ladder.
func (s OrderStatus) RestsOnBook() bool {
	return s == Pending || s == PendingTrigger || s == PartiallyFilled
}

// Security is immutable once registered into a session.
type Security struct {
	ID              string
	Type            AssetType
	TickSize        decimal.Decimal
	QuotePrecision  int32
	StartPrice      decimal.Decimal
}

// Order is the unit of work submitted to the matching engine. Quantity and
// Remaining are both expressed in whole shares/contracts; Remaining starts
// equal to Quantity and only ever decreases.
type Order struct {
	ID            string
	SessionID     string
	UserID        string
	SecurityID    string
	Side          Side
	Type          OrderType
	Quantity      uint64
	Remaining     uint64
	LimitPrice    decimal.Decimal
	StopPrice     decimal.Decimal
	TIF           TimeInForce
	Status        OrderStatus
	SubmittedAt   time.Time
	ExchTimestamp time.Time
	ExecutedAt    time.Time
	CancelledAt   time.Time
	RejectReason  string
}

// Filled is the quantity already executed.
func (o *Order) Filled() uint64 {
	return o.Quantity - o.Remaining
}

// Clone returns a value copy safe for handing to a caller outside the
// session actor's serial context.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// Trade is one maker/taker execution. Trades are append-only; the book's
// "last trade" is always the most recently published one for that security.
type Trade struct {
	ID            string
	SessionID     string
	SecurityID    string
	Price         decimal.Decimal
	Quantity      uint64
	TakerOrderID  string
	MakerOrderID  string
	TakerUserID   string
	MakerUserID   string
	TakerSide     Side
	Timestamp     time.Time
}

// Position is a single (session, user, security) holding.
type Position struct {
	SessionID     string
	UserID        string
	SecurityID    string
	Quantity      int64 // signed; negative == short
	Basis         decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// IsFlat reports whether the position is logically absent.
func (p *Position) IsFlat() bool {
	return p.Quantity == 0
}

// Portfolio is the per-(session, user) ledger.
type Portfolio struct {
	SessionID   string
	UserID      string
	Cash        decimal.Decimal
	StartCash   decimal.Decimal
	Positions   map[string]*Position // keyed by SecurityID
	RealizedPnL decimal.Decimal
}

// TotalEquity computes cash + sum(qty * markPrice) using the supplied mark
// prices (securityID -> last/mark price). Securities with no known mark are
// valued at their cost basis.
func (p *Portfolio) TotalEquity(marks map[string]decimal.Decimal) decimal.Decimal {
	total := p.Cash
	for secID, pos := range p.Positions {
		if pos.IsFlat() {
			continue
		}
		mark, ok := marks[secID]
		if !ok {
			mark = pos.Basis
		}
		total = total.Add(mark.Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return total
}

// PortfolioSnapshot is the read-only view handed to subscribers.
type PortfolioSnapshot struct {
	UserID        string
	Cash          decimal.Decimal
	TotalEquity   decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Positions     []Position
}
