package liquidity

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhouse/internal/common"
)

// fakeEngine is a minimal stand-in for *matching.Engine that just records
// submitted/cancelled orders, so the provider can be tested in isolation.
type fakeEngine struct {
	submitted []*common.Order
	cancelled []string
	rejectAll bool
	nextID    int
}

func (f *fakeEngine) Submit(order *common.Order) (*common.Order, error) {
	if f.rejectAll {
		return order, assertError{}
	}
	f.nextID++
	order.ID = string(rune('a' + f.nextID))
	f.submitted = append(f.submitted, order)
	return order, nil
}

func (f *fakeEngine) Cancel(orderID, byUser string) bool {
	f.cancelled = append(f.cancelled, orderID)
	return true
}

type assertError struct{}

func (assertError) Error() string { return "rejected" }

func newTestProvider() (*Provider, *fakeEngine) {
	eng := &fakeEngine{}
	p := New("AAPL", eng, zerolog.Nop())
	p.Configure("enabled", "true")
	return p, eng
}

func TestRequote_PostsBidAndAskAroundReferencePrice(t *testing.T) {
	p, eng := newTestProvider()
	p.Requote(decimal.NewFromFloat(100.00))

	require.Len(t, eng.submitted, 2)
	bid, ask := eng.submitted[0], eng.submitted[1]
	assert.Equal(t, common.Buy, bid.Side)
	assert.Equal(t, common.Sell, ask.Side)
	assert.True(t, bid.LimitPrice.LessThan(ask.LimitPrice), "bid must rest below ask")
}

func TestRequote_CancelsPriorQuotesBeforeReposting(t *testing.T) {
	p, eng := newTestProvider()
	p.Requote(decimal.NewFromFloat(100.00))
	p.Requote(decimal.NewFromFloat(101.00))

	assert.Len(t, eng.cancelled, 2, "second requote must pull both prior quotes first")
	assert.Len(t, eng.submitted, 4)
}

func TestRequote_NoOpWhenDisabled(t *testing.T) {
	eng := &fakeEngine{}
	p := New("AAPL", eng, zerolog.Nop())
	p.Requote(decimal.NewFromFloat(100.00))
	assert.Empty(t, eng.submitted)
}

func TestDisable_PullsRestingQuotes(t *testing.T) {
	p, eng := newTestProvider()
	p.Requote(decimal.NewFromFloat(100.00))
	p.Disable()
	assert.Len(t, eng.cancelled, 2)
	assert.False(t, p.Enabled())
}

func TestConfigure_SpreadWidensQuotesSymmetrically(t *testing.T) {
	p, eng := newTestProvider()
	p.Configure("spread", "2.00")
	p.Requote(decimal.NewFromFloat(100.00))

	bid, ask := eng.submitted[0], eng.submitted[1]
	assert.True(t, bid.LimitPrice.Equal(decimal.NewFromFloat(99.00)))
	assert.True(t, ask.LimitPrice.Equal(decimal.NewFromFloat(101.00)))
}

func TestConfigure_UnknownSettingIsIgnored(t *testing.T) {
	p, _ := newTestProvider()
	assert.NotPanics(t, func() { p.Configure("bogus", "xyz") })
}

func TestDueForRequote_RespectsConfiguredInterval(t *testing.T) {
	p, eng := newTestProvider()
	p.Configure("refresh", "30")
	assert.True(t, p.DueForRequote(time.Now()), "never requoted yet, always due")

	p.Requote(decimal.NewFromFloat(100.00))
	assert.False(t, p.DueForRequote(time.Now()), "just requoted, not due again")
	_ = eng
}
