package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhouse/internal/common"
	"sessionhouse/internal/events"
)

// These reproduce the worked scenarios S1-S6 used to validate the matching
// semantics, with AAPL as the security. S6 applies the new 105 mark
// directly through the portfolio engine rather than through a trade.

func TestScenarioS1_SimpleCross(t *testing.T) {
	e, pf, _ := newTestEngine(t, "100000")

	_, err := e.Submit(limitOrder("A", common.Buy, "100.00", 100))
	require.NoError(t, err)
	b, ok := e.Book("AAPL")
	require.True(t, ok)
	bestBid, ok := b.Best(common.Buy)
	require.True(t, ok)
	assert.True(t, bestBid.Price.Equal(d("100.00")))
	assert.Equal(t, uint64(100), bestBid.Quantity)

	bOrder, err := e.Submit(limitOrder("B", common.Sell, "100.00", 100))
	require.NoError(t, err)
	assert.Equal(t, common.Filled, bOrder.Status)

	_, hasBid := b.Best(common.Buy)
	assert.False(t, hasBid, "book should be empty after the cross")
	_, hasAsk := b.Best(common.Sell)
	assert.False(t, hasAsk)
	assert.True(t, b.Last.Price.Equal(d("100.00")))

	aSnap := pf.Snapshot("A")
	assert.True(t, aSnap.Cash.Equal(d("90000")))
	bSnap := pf.Snapshot("B")
	assert.True(t, bSnap.Cash.Equal(d("110000")))
	assert.Equal(t, int64(100), pf.PositionQty("A", "AAPL"))
	assert.Equal(t, int64(-100), pf.PositionQty("B", "AAPL"))
}

func TestScenarioS2_PartialFillWithResidualResting(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("maker1", common.Sell, "101.00", 60))
	require.NoError(t, err)
	_, err = e.Submit(limitOrder("maker2", common.Sell, "102.00", 40))
	require.NoError(t, err)

	x, err := e.Submit(limitOrder("X", common.Buy, "101.00", 80))
	require.NoError(t, err)
	assert.Equal(t, common.PartiallyFilled, x.Status)
	assert.Equal(t, uint64(20), x.Remaining)

	b, _ := e.Book("AAPL")
	bestBid, ok := b.Best(common.Buy)
	require.True(t, ok, "X's residual 20 must rest as a bid at 101")
	assert.True(t, bestBid.Price.Equal(d("101.00")))
	assert.Equal(t, uint64(20), bestBid.Quantity)

	bestAsk, ok := b.Best(common.Sell)
	require.True(t, ok)
	assert.True(t, bestAsk.Price.Equal(d("102.00")))
	assert.Equal(t, uint64(40), bestAsk.Quantity)
}

func TestScenarioS3_MarketOrderWalksMultipleLevels(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("A", common.Buy, "99.00", 30))
	require.NoError(t, err)
	_, err = e.Submit(limitOrder("B", common.Buy, "98.00", 50))
	require.NoError(t, err)

	y := &common.Order{
		UserID: "Y", SecurityID: "AAPL", Side: common.Sell,
		Type: common.MarketOrder, Quantity: 70, TIF: common.Day,
	}
	filled, err := e.Submit(y)
	require.NoError(t, err)
	assert.Equal(t, common.Filled, filled.Status)

	b, _ := e.Book("AAPL")
	bestBid, ok := b.Best(common.Buy)
	require.True(t, ok)
	assert.True(t, bestBid.Price.Equal(d("98.00")))
	assert.Equal(t, uint64(10), bestBid.Quantity)
	assert.True(t, b.Last.Price.Equal(d("98.00")))
}

func TestScenarioS4_FillOrKillInsufficientIsRejectedWithNoBookChange(t *testing.T) {
	e, _, sink := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("maker", common.Sell, "100.00", 40))
	require.NoError(t, err)

	z := &common.Order{
		UserID: "Z", SecurityID: "AAPL", Side: common.Buy, Type: common.LimitOrder,
		Quantity: 50, LimitPrice: d("100.00"), TIF: common.FillOrKill,
	}
	rejected, err := e.Submit(z)
	require.NoError(t, err, "FOK shortfall rejects via order status, not a Submit error")
	assert.Equal(t, common.Rejected, rejected.Status)

	b, _ := e.Book("AAPL")
	bestAsk, ok := b.Best(common.Sell)
	require.True(t, ok)
	assert.Equal(t, uint64(40), bestAsk.Quantity, "book must be untouched by a killed FOK")
	assert.Equal(t, 1, sink.kindCount(events.OrderRejected))
}

func TestScenarioS5_PriceTimePriority(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")

	a, err := e.Submit(limitOrder("A", common.Buy, "100.00", 20))
	require.NoError(t, err)
	b, err := e.Submit(limitOrder("B", common.Buy, "100.00", 20))
	require.NoError(t, err)

	seller := &common.Order{
		UserID: "seller", SecurityID: "AAPL", Side: common.Sell,
		Type: common.MarketOrder, Quantity: 20, TIF: common.Day,
	}
	_, err = e.Submit(seller)
	require.NoError(t, err)

	assert.Equal(t, common.Filled, a.Status, "earlier resting bid (A) must fill first")
	assert.Equal(t, uint64(0), a.Remaining)
	assert.Equal(t, common.Pending, b.Status, "later resting bid (B) must be untouched")
	assert.Equal(t, uint64(20), b.Remaining)
}

func TestScenarioS6_MarkToMarketUpdatesUnrealizedOnNewMark(t *testing.T) {
	e, pf, _ := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("A", common.Buy, "100.00", 100))
	require.NoError(t, err)
	_, err = e.Submit(limitOrder("maker", common.Sell, "100.00", 100))
	require.NoError(t, err)

	before := pf.Snapshot("A")
	assert.True(t, before.UnrealizedPnL.IsZero())

	pf.OnMark("AAPL", d("105.00"))

	after := pf.Snapshot("A")
	assert.True(t, after.UnrealizedPnL.Equal(d("500.00")))
	assert.True(t, after.Cash.Equal(before.Cash), "mark-to-market never touches cash")
	assert.True(t, after.RealizedPnL.Equal(before.RealizedPnL))
}
