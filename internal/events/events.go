// Package events defines the typed event vocabulary fanned out by a
// session's event bus (spec §4.5). It has no dependency on the engines
// that produce events or the bus that carries them, so every package that
// needs to describe "something happened" can import it without creating a
// cycle.
package events

import "time"

// Kind enumerates the event families of spec §4.5.
type Kind int

const (
	OrderAccepted Kind = iota
	OrderRejected
	OrderUpdated
	TradeExecuted
	BookUpdated
	MarketOpened
	MarketClosed
	PortfolioUpdated
	SessionStateChanged
	PrivilegeChanged
	AuctionStarted
	AuctionBid
	AuctionClosed
	SubscriberSlow
)

func (k Kind) String() string {
	switch k {
	case OrderAccepted:
		return "order-accepted"
	case OrderRejected:
		return "order-rejected"
	case OrderUpdated:
		return "order-updated"
	case TradeExecuted:
		return "trade"
	case BookUpdated:
		return "book-updated"
	case MarketOpened:
		return "market-opened"
	case MarketClosed:
		return "market-closed"
	case PortfolioUpdated:
		return "portfolio-updated"
	case SessionStateChanged:
		return "session-state-changed"
	case PrivilegeChanged:
		return "privilege-changed"
	case AuctionStarted:
		return "auction-started"
	case AuctionBid:
		return "auction-bid"
	case AuctionClosed:
		return "auction-closed"
	case SubscriberSlow:
		return "subscriber-slow"
	default:
		return "unknown"
	}
}

// Event is the envelope every subscriber receives. Seq is assigned by the
// bus and is strictly increasing per session (Testable Property 9).
type Event struct {
	Seq       uint64
	SessionID string
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// Visibility names the two delivery scopes an event can have. The bus does
// not consult this type: its Gate decides per (event, subscriber) pair, and
// the default gate treats payloads implementing Owned as VisibleToOwner and
// all others as VisibleToAll.
type Visibility int

const (
	// VisibleToAll is delivered to every subscriber of the session.
	VisibleToAll Visibility = iota
	// VisibleToOwner is delivered only to the user named in the payload's
	// OwnerUserID (order/portfolio events belonging to one student).
	VisibleToOwner
)

// Owned is implemented by payloads that are scoped to a single user.
type Owned interface {
	OwnerUserID() string
}
