// Package book implements the price-time priority ladders for a single
// security: two sorted price levels (bids descending, asks ascending),
// each a FIFO queue of resting orders. It knows nothing about validation,
// privileges or accounting — that belongs to the matching engine.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"sessionhouse/internal/common"
)

// Level is price -> FIFO queue of resting orders at that price. The cached
// Quantity is kept in lockstep with the sum of Orders[i].Remaining; callers
// must go through Level's own mutators (append/removeAt) rather than
// splicing Orders directly, or the cache will drift.
type Level struct {
	Price    decimal.Decimal
	Orders   []*common.Order
	Quantity uint64
}

func newLevel(price decimal.Decimal, order *common.Order) *Level {
	return &Level{
		Price:    price,
		Orders:   []*common.Order{order},
		Quantity: order.Remaining,
	}
}

// append adds an order to the back of the FIFO, preserving arrival order.
func (l *Level) append(order *common.Order) {
	l.Orders = append(l.Orders, order)
	l.Quantity += order.Remaining
}

// removeAt deletes the order at index i, maintaining the cached quantity.
func (l *Level) removeAt(i int) {
	l.Quantity -= l.Orders[i].Remaining
	l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
}

// dropFilledPrefix removes every order at the front of the FIFO whose
// Remaining has reached zero, as happens mid-match. The quantity cache is
// adjusted for every order removed this way.
func (l *Level) dropFilledPrefix() {
	i := 0
	for i < len(l.Orders) && l.Orders[i].Remaining == 0 {
		i++
	}
	if i > 0 {
		l.Orders = l.Orders[i:]
	}
}

func (l *Level) empty() bool {
	return len(l.Orders) == 0
}

// levels is the ordering-aware btree wrapper shared by both ladders; the
// comparator is supplied per side (bids: descending, asks: ascending).
type levels = btree.BTreeG[*Level]

func newBidLevels() *levels {
	return btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price.GreaterThan(b.Price)
	})
}

func newAskLevels() *levels {
	return btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price.LessThan(b.Price)
	})
}
