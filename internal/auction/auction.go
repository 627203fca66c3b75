// Package auction implements the ascending-clock privilege auction named
// by the "Create Auction"/"Start Auction" scripted commands (spec §4.4):
// a fixed number of privilege slots, an opening price, a per-interval
// price increment, and a close rule of "no new bid within one interval".
package auction

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sessionhouse/internal/privilege"
)

type State int

const (
	PendingAuction State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case PendingAuction:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Bid records one participant's standing interest at the auction's
// current clock price.
type Bid struct {
	UserID string
	Price  decimal.Decimal
	At     time.Time
}

// Winner is one awarded slot, for the session to charge cash and grant
// the privilege against.
type Winner struct {
	UserID string
	Price  decimal.Decimal
}

// Auction is one privilege auction instance, created by "Create Auction"
// and activated by "Start Auction".
type Auction struct {
	ID            string
	PrivilegeCode privilege.Code
	Available     int
	Price         decimal.Decimal
	Increment     decimal.Decimal
	Interval      time.Duration

	State      State
	bids       map[string]Bid
	lastBidAt  time.Time
	startedAt  time.Time
}

func New(id string, code privilege.Code, available int, initialPrice, increment decimal.Decimal, interval time.Duration) *Auction {
	return &Auction{
		ID:            id,
		PrivilegeCode: code,
		Available:     available,
		Price:         initialPrice,
		Increment:     increment,
		Interval:      interval,
		State:         PendingAuction,
		bids:          make(map[string]Bid),
	}
}

// Start activates a pending auction at a given wall-clock time.
func (a *Auction) Start(now time.Time) {
	if a.State != PendingAuction {
		return
	}
	a.State = Active
	a.startedAt = now
	a.lastBidAt = now
}

// PlaceBid registers userID's standing interest at the auction's current
// clock price, refreshing it if they had already bid. Returns false if
// the auction isn't active.
func (a *Auction) PlaceBid(userID string, now time.Time) bool {
	if a.State != Active {
		return false
	}
	a.bids[userID] = Bid{UserID: userID, Price: a.Price, At: now}
	a.lastBidAt = now
	return true
}

// Tick advances the auction's clock. It is driven by the session's
// auction tick loop once every Interval while the auction is Active. It closes the auction (returning the final winners) either when
// no bid has arrived since the last tick, or once the number of standing
// bidders has fallen to Available or fewer at the current price — in both
// cases bidding has settled and the clock stops raising the price
// further. Otherwise the price rises by Increment for the next round.
func (a *Auction) Tick(now time.Time) (closed bool, winners []Winner) {
	if a.State != Active {
		return a.State == Closed, nil
	}
	if a.lastBidAt.Before(now.Add(-a.Interval)) || len(a.bids) <= a.Available {
		return a.close(), a.winners()
	}
	a.Price = a.Price.Add(a.Increment)
	return false, nil
}

func (a *Auction) close() bool {
	a.State = Closed
	return true
}

// winners ranks standing bidders by earliest bid time (first to commit at
// the final clock price) and awards the top Available slots.
func (a *Auction) winners() []Winner {
	all := make([]Bid, 0, len(a.bids))
	for _, b := range a.bids {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].At.Before(all[j].At) })
	n := a.Available
	if n > len(all) {
		n = len(all)
	}
	out := make([]Winner, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Winner{UserID: all[i].UserID, Price: a.Price})
	}
	return out
}
