package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"sessionhouse/internal/common"
)

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func restingOrder(id string, side common.Side, p string, qty uint64) *common.Order {
	return &common.Order{
		ID:         id,
		Side:       side,
		Type:       common.LimitOrder,
		LimitPrice: price(p),
		Quantity:   qty,
		Remaining:  qty,
	}
}

// placeLevel adds several resting orders at one price level, mirroring the
// teacher's placeTestOrders helper (internal/tests/orderbook_test.go).
func placeLevel(b *OrderBook, side common.Side, p string, quantities ...uint64) {
	for i, qty := range quantities {
		b.AddResting(restingOrder(fmtID(side, p, i), side, p, qty))
	}
}

func fmtID(side common.Side, p string, i int) string {
	return side.String() + "-" + p + "-" + string(rune('a'+i))
}

func TestAddResting_AggregatesSamePriceIntoOneLevel(t *testing.T) {
	b := New("AAPL")
	placeLevel(b, common.Buy, "99.00", 100, 90, 80)
	placeLevel(b, common.Sell, "100.00", 100, 90, 80)

	asks := b.LevelsOn(common.Sell)
	assert.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(price("100.00")))
	assert.Equal(t, uint64(270), asks[0].Quantity)

	bids := b.LevelsOn(common.Buy)
	assert.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(price("99.00")))
}

func TestAddResting_MultipleLevelsOrderedBestFirst(t *testing.T) {
	b := New("AAPL")
	placeLevel(b, common.Buy, "99.00", 100, 90, 80)
	placeLevel(b, common.Buy, "98.00", 50)
	placeLevel(b, common.Sell, "100.00", 100, 90)
	placeLevel(b, common.Sell, "101.00", 20)

	bids := b.LevelsOn(common.Buy)
	assert.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(price("99.00")), "best bid (highest) first")
	assert.True(t, bids[1].Price.Equal(price("98.00")))

	asks := b.LevelsOn(common.Sell)
	assert.Len(t, asks, 2)
	assert.True(t, asks[0].Price.Equal(price("100.00")), "best ask (lowest) first")
	assert.True(t, asks[1].Price.Equal(price("101.00")))
}

func TestRemove_DeletesEmptiedLevel(t *testing.T) {
	b := New("AAPL")
	o := restingOrder("o1", common.Buy, "99.00", 100)
	b.AddResting(o)

	assert.True(t, b.Remove("o1"))
	_, ok := b.Best(common.Buy)
	assert.False(t, ok)
	assert.False(t, b.Remove("o1"), "removing twice is a no-op, not an error")
}

func TestSnapshot_ReportsTopNLevelsAndLastTrade(t *testing.T) {
	b := New("AAPL")
	placeLevel(b, common.Sell, "100.00", 50)
	placeLevel(b, common.Sell, "101.00", 20)
	placeLevel(b, common.Sell, "102.00", 10)
	b.PublishLast(price("100.00"), 50, time.Now())

	snap := b.Snapshot(2)
	assert.Len(t, snap.Asks, 2)
	assert.True(t, snap.Asks[0].Price.Equal(price("100.00")))
	assert.True(t, snap.Asks[1].Price.Equal(price("101.00")))
	assert.Equal(t, uint64(50), snap.Last.Quantity)
}

func TestCrossed_DetectsInvertedBook(t *testing.T) {
	b := New("AAPL")
	placeLevel(b, common.Buy, "100.00", 10)
	placeLevel(b, common.Sell, "100.00", 10)
	assert.True(t, b.Crossed())
}
