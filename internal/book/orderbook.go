package book

import (
	"time"

	"github.com/shopspring/decimal"

	"sessionhouse/internal/common"
)

// LastTrade records the most recent execution published against this book;
// it is also the book's current mark price.
type LastTrade struct {
	Price     decimal.Decimal
	Quantity  uint64
	Timestamp time.Time
}

// OrderBook holds the two ladders for one (session, security) pair. All
// operations are total — they never error and never block — matching
// spec §4.1's "no I/O, no allocation failure surfaced" contract. Callers
// (the matching engine) are responsible for validating inputs first.
type OrderBook struct {
	SecurityID string

	Bids *levels
	Asks *levels

	// index maps an order id to the Level it currently rests in, for
	// O(log n) cancel-by-id instead of a linear scan of every level.
	index map[string]*Level

	Last LastTrade
}

// New creates an empty book for a security.
func New(securityID string) *OrderBook {
	return &OrderBook{
		SecurityID: securityID,
		Bids:       newBidLevels(),
		Asks:       newAskLevels(),
		index:      make(map[string]*Level),
	}
}

func (b *OrderBook) ladder(side common.Side) *levels {
	if side == common.Buy {
		return b.Bids
	}
	return b.Asks
}

// AddResting places a non-crossing limit order at its price level,
// appended to the FIFO at that level. No-op if Remaining == 0. Preserves
// the invariant that re-adding at an already-existing price never
// reorders the level's FIFO.
func (b *OrderBook) AddResting(order *common.Order) {
	if order.Remaining == 0 {
		return
	}
	ladder := b.ladder(order.Side)
	key := &Level{Price: order.LimitPrice}
	if lvl, ok := ladder.GetMut(key); ok {
		lvl.append(order)
		b.index[order.ID] = lvl
		return
	}
	lvl := newLevel(order.LimitPrice, order)
	ladder.Set(lvl)
	b.index[order.ID] = lvl
}

// Remove deletes an order by id. Returns false if the id is unknown (it
// was never resting, or has already been removed). O(log n) via the
// id -> level index plus a linear scan within that level's FIFO (FIFOs at
// a single price are expected to be short relative to book depth).
func (b *OrderBook) Remove(orderID string) bool {
	lvl, ok := b.index[orderID]
	if !ok {
		return false
	}
	delete(b.index, orderID)

	for i, o := range lvl.Orders {
		if o.ID == orderID {
			lvl.removeAt(i)
			break
		}
	}
	if lvl.empty() {
		b.deleteLevel(lvl)
	}
	return true
}

func (b *OrderBook) deleteLevel(lvl *Level) {
	b.Bids.Delete(lvl)
	b.Asks.Delete(lvl)
}

// Best returns the best price level on a side and whether one exists.
func (b *OrderBook) Best(side common.Side) (*Level, bool) {
	return b.ladder(side).Min()
}

// BestMut returns a mutable handle to the best level on a side, for the
// matching engine's walk. Mutating the returned Level's Orders/Quantity
// directly is only safe from within the session actor's serial context.
func (b *OrderBook) BestMut(side common.Side) (*Level, bool) {
	return b.ladder(side).MinMut()
}

// DeleteLevel removes a now-empty level from its ladder and drops its
// resting orders from the id index. Called by the matching engine once a
// level's FIFO has been fully consumed.
func (b *OrderBook) DeleteLevel(lvl *Level) {
	for _, o := range lvl.Orders {
		delete(b.index, o.ID)
	}
	b.deleteLevel(lvl)
}

// Reindex must be called by the matching engine after partially consuming
// a level's FIFO prefix in place, so the id index stops pointing at
// orders that no longer rest in the book.
func (b *OrderBook) Reindex(lvl *Level, consumed []*common.Order) {
	for _, o := range consumed {
		delete(b.index, o.ID)
	}
}

// LevelsOn returns every level on one side, in price-improving order
// (best first), without mutating the ladder.
func (b *OrderBook) LevelsOn(side common.Side) []*Level {
	var out []*Level
	b.ladder(side).Scan(func(lvl *Level) bool { out = append(out, lvl); return true })
	return out
}

// AllLevels returns every level on both sides, for operations that must
// scan the whole book (e.g. expiring Day orders at market close).
func (b *OrderBook) AllLevels() []*Level {
	var out []*Level
	b.Bids.Scan(func(lvl *Level) bool { out = append(out, lvl); return true })
	b.Asks.Scan(func(lvl *Level) bool { out = append(out, lvl); return true })
	return out
}

// Crossed reports whether the book is in an invalid crossed state (best
// bid >= best ask). The matcher never leaves the book in this state; this
// is exposed purely for invariant checks in tests.
func (b *OrderBook) Crossed() bool {
	bid, bidOk := b.Best(common.Buy)
	ask, askOk := b.Best(common.Sell)
	if !bidOk || !askOk {
		return false
	}
	return !bid.Price.LessThan(ask.Price)
}

// Snapshot returns the top N aggregated levels per side, for publishing to
// subscribers. A level's Quantity is its cached resting quantity; orders
// themselves are not exposed (subscribers only see their own orders,
// which the session layer attaches separately).
type LevelView struct {
	Price    decimal.Decimal
	Quantity uint64
	Orders   int
}

type Snapshot struct {
	SecurityID string
	Bids       []LevelView
	Asks       []LevelView
	Last       LastTrade
}

func (b *OrderBook) Snapshot(depth int) Snapshot {
	return Snapshot{
		SecurityID: b.SecurityID,
		Bids:       topN(b.Bids, depth),
		Asks:       topN(b.Asks, depth),
		Last:       b.Last,
	}
}

func topN(l *levels, depth int) []LevelView {
	out := make([]LevelView, 0, depth)
	l.Scan(func(lvl *Level) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, LevelView{
			Price:    lvl.Price,
			Quantity: lvl.Quantity,
			Orders:   len(lvl.Orders),
		})
		return true
	})
	return out
}

// PublishLast records a new last trade (and therefore mark price) for the
// book's security.
func (b *OrderBook) PublishLast(price decimal.Decimal, qty uint64, ts time.Time) {
	b.Last = LastTrade{Price: price, Quantity: qty, Timestamp: ts}
}
