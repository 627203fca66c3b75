package matching

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhouse/internal/common"
	"sessionhouse/internal/events"
	"sessionhouse/internal/portfolio"
)

// recordingSink captures every published event, mirroring the teacher's
// style of asserting directly on book state (internal/tests/orderbook_test.go)
// but for the event-driven matching engine.
type recordingSink struct {
	events []events.Event
}

func (s *recordingSink) Publish(kind events.Kind, payload any) {
	s.events = append(s.events, events.Event{Kind: kind, Payload: payload})
}

func (s *recordingSink) kindCount(k events.Kind) int {
	n := 0
	for _, e := range s.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestEngine(t *testing.T, startCash string) (*Engine, *portfolio.Engine, *recordingSink) {
	pf := portfolio.New("s1", d(startCash), zerolog.Nop())
	sink := &recordingSink{}
	e := New("s1", pf, sink, zerolog.Nop())
	e.AllowShort = true
	e.RegisterSecurity(&common.Security{ID: "AAPL", TickSize: d("0.01"), StartPrice: d("100.00")})
	e.SetRunning(true)
	e.OpenMarket()
	return e, pf, sink
}

func limitOrder(userID string, side common.Side, price string, qty uint64) *common.Order {
	return &common.Order{
		UserID:     userID,
		SecurityID: "AAPL",
		Side:       side,
		Type:       common.LimitOrder,
		Quantity:   qty,
		LimitPrice: d(price),
		TIF:        common.GoodTillCancelled,
	}
}

func TestSubmit_RestingLimitOrdersSortByPriceThenTime(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("alice", common.Buy, "99.00", 100))
	require.NoError(t, err)
	_, err = e.Submit(limitOrder("bob", common.Buy, "99.50", 50))
	require.NoError(t, err)

	b, ok := e.Book("AAPL")
	require.True(t, ok)
	best, ok := b.Best(common.Buy)
	require.True(t, ok)
	assert.True(t, best.Price.Equal(d("99.50")), "higher bid should be best")
}

func TestSubmit_CrossingLimitOrderSweepsMultipleLevels(t *testing.T) {
	e, pf, sink := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("maker1", common.Sell, "100.00", 50))
	require.NoError(t, err)
	_, err = e.Submit(limitOrder("maker2", common.Sell, "100.00", 40))
	require.NoError(t, err)
	_, err = e.Submit(limitOrder("maker3", common.Sell, "101.00", 20))
	require.NoError(t, err)

	taker, err := e.Submit(limitOrder("taker", common.Buy, "101.00", 110))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), taker.Remaining)
	assert.Equal(t, common.Filled, taker.Status)

	b, _ := e.Book("AAPL")
	_, hasAsks := b.Best(common.Sell)
	assert.False(t, hasAsks, "book should be swept clean")

	assert.Equal(t, 3, sink.kindCount(events.TradeExecuted))

	takerPos := pf.PositionQty("taker", "AAPL")
	assert.Equal(t, int64(110), takerPos)
}

func TestSubmit_PartialSweepLeavesResidualOnBestLevel(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")

	_, err := e.Submit(limitOrder("maker", common.Sell, "100.00", 90))
	require.NoError(t, err)

	taker, err := e.Submit(limitOrder("taker", common.Buy, "100.00", 20))
	require.NoError(t, err)
	assert.Equal(t, common.Filled, taker.Status)

	b, _ := e.Book("AAPL")
	lvl, ok := b.Best(common.Sell)
	require.True(t, ok)
	assert.Equal(t, uint64(70), lvl.Quantity)
}

func TestSubmit_RejectsWhenMarketClosedForNonGTC(t *testing.T) {
	e, _, sink := newTestEngine(t, "1000000")
	e.CloseMarket()

	order := limitOrder("alice", common.Buy, "99.00", 10)
	order.TIF = common.Day
	_, err := e.Submit(order)
	assert.Error(t, err)
	assert.Equal(t, 1, sink.kindCount(events.OrderRejected))
}

func TestCancel_OwnerOnlyUnlessCancelAny(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")
	order, err := e.Submit(limitOrder("alice", common.Buy, "99.00", 10))
	require.NoError(t, err)

	assert.False(t, e.Cancel(order.ID, "mallory"))
	assert.True(t, e.Cancel(order.ID, "alice"))
	assert.True(t, e.live[order.ID] == nil)
}

func TestCancelAny_BypassesOwnership(t *testing.T) {
	e, _, _ := newTestEngine(t, "1000000")
	order, err := e.Submit(limitOrder("alice", common.Buy, "99.00", 10))
	require.NoError(t, err)

	assert.True(t, e.CancelAny(order.ID))
}

func TestStopOrder_TriggersOnCrossingMark(t *testing.T) {
	e, _, sink := newTestEngine(t, "1000000")
	_, err := e.Submit(limitOrder("maker", common.Sell, "100.00", 100))
	require.NoError(t, err)

	stop := &common.Order{
		UserID:     "alice",
		SecurityID: "AAPL",
		Side:       common.Buy,
		Type:       common.StopOrder,
		Quantity:   10,
		StopPrice:  d("99.00"),
		TIF:        common.GoodTillCancelled,
	}
	placed, err := e.Submit(stop)
	require.NoError(t, err)
	assert.Equal(t, common.PendingTrigger, placed.Status)

	e.OnExternalMark("AAPL", d("99.00"))
	assert.Equal(t, 1, sink.kindCount(events.TradeExecuted))
}
