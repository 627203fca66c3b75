package session

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhouse/internal/common"
	"sessionhouse/internal/privilege"
)

func testPlan(allowShort bool) LessonPlan {
	return LessonPlan{
		ScenarioID:   "test",
		StartingCash: decimal.NewFromInt(100000),
		AllowShort:   allowShort,
		Securities: []SecuritySpec{
			{ID: "AAPL", TickSize: decimal.NewFromFloat(0.01), StartPrice: decimal.NewFromInt(100)},
		},
	}
}

func newTestSession(allowShort bool) *Session {
	return New("sess1", testPlan(allowShort), []string{"alice", "bob"}, 10, nil, nil, zerolog.Nop())
}

func grant(s *Session, userID string, code privilege.Code) {
	s.grants.Grant(userID, code)
}

func TestStart_RequiresPending(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "starting twice must fail")
}

func TestPause_RequiresInProgress(t *testing.T) {
	s := newTestSession(false)
	assert.Error(t, s.Pause(), "pausing a pending session must fail")
}

func TestResume_RequiresPaused(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	assert.Error(t, s.Resume(), "resuming a non-paused session must fail")
}

func TestEnd_RequiresNonTerminal(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	require.NoError(t, s.End())
	assert.Error(t, s.End(), "ending twice must fail")
}

func TestCancel_OnlyValidFromPending(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	assert.Error(t, s.Cancel(), "cancel after start must fail")
}

func TestSubmitOrder_RejectsWhenSessionNotInProgress(t *testing.T) {
	s := newTestSession(false)
	grant(s, "alice", privilege.LimitOrders)

	_, err := s.SubmitOrder("alice", OrderSpec{
		SecurityID: "AAPL", Side: common.Buy, Type: common.LimitOrder,
		Quantity: 10, LimitPrice: decimal.NewFromInt(100), TIF: common.GoodTillCancelled,
	})
	assert.Error(t, err)
}

func TestSubmitOrder_RejectsWithoutOrderTypePrivilege(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	s.matching.OpenMarket()

	_, err := s.SubmitOrder("alice", OrderSpec{
		SecurityID: "AAPL", Side: common.Buy, Type: common.LimitOrder,
		Quantity: 10, LimitPrice: decimal.NewFromInt(100), TIF: common.GoodTillCancelled,
	})
	assert.Error(t, err, "alice has no Limit Orders privilege yet")
}

func TestSubmitOrder_SucceedsOncePrivilegeGranted(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	s.matching.OpenMarket()
	grant(s, "alice", privilege.LimitOrders)

	order, err := s.SubmitOrder("alice", OrderSpec{
		SecurityID: "AAPL", Side: common.Buy, Type: common.LimitOrder,
		Quantity: 10, LimitPrice: decimal.NewFromInt(100), TIF: common.GoodTillCancelled,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
}

func TestSubmitOrder_RejectsShortSellWithoutPrivilegeWhenAllowShort(t *testing.T) {
	s := newTestSession(true)
	require.NoError(t, s.Start())
	s.matching.OpenMarket()
	grant(s, "alice", privilege.LimitOrders)

	_, err := s.SubmitOrder("alice", OrderSpec{
		SecurityID: "AAPL", Side: common.Sell, Type: common.LimitOrder,
		Quantity: 10, LimitPrice: decimal.NewFromInt(100), TIF: common.GoodTillCancelled,
	})
	assert.Error(t, err, "alice holds no position and lacks the short-selling privilege")
}

func TestCancelOrder_OwnerCanCancelOwnOrder(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	s.matching.OpenMarket()
	grant(s, "alice", privilege.LimitOrders)

	order, err := s.SubmitOrder("alice", OrderSpec{
		SecurityID: "AAPL", Side: common.Buy, Type: common.LimitOrder,
		Quantity: 10, LimitPrice: decimal.NewFromInt(99), TIF: common.GoodTillCancelled,
	})
	require.NoError(t, err)

	assert.False(t, s.CancelOrder("bob", order.ID), "bob doesn't own the order and lacks CancelAnyOrder")
	assert.True(t, s.CancelOrder("alice", order.ID))
}

func TestCancelOrder_CancelAnyOrderPrivilegeBypassesOwnership(t *testing.T) {
	s := newTestSession(false)
	require.NoError(t, s.Start())
	s.matching.OpenMarket()
	grant(s, "alice", privilege.LimitOrders)
	grant(s, "bob", privilege.CancelAnyOrder)

	order, err := s.SubmitOrder("alice", OrderSpec{
		SecurityID: "AAPL", Side: common.Buy, Type: common.LimitOrder,
		Quantity: 10, LimitPrice: decimal.NewFromInt(99), TIF: common.GoodTillCancelled,
	})
	require.NoError(t, err)
	assert.True(t, s.CancelOrder("bob", order.ID))
}

func TestSubscribe_SnapshotReflectsPrivilegesAndState(t *testing.T) {
	s := newTestSession(false)
	grant(s, "alice", privilege.LimitOrders)

	snap, stream, unsub := s.Subscribe("alice", 5)
	defer unsub()

	assert.Equal(t, Pending, snap.State)
	assert.Contains(t, snap.Privileges, privilege.LimitOrders)
	assert.Contains(t, snap.Books, "AAPL")
	assert.NotNil(t, stream)
}

func TestDispatchLocked_GrantPrivilegeResolvesAllGroup(t *testing.T) {
	s := newTestSession(false)
	s.mu.Lock()
	s.dispatchLocked(ScriptedCommand{
		Command: GrantPrivilege,
		Params:  map[string]string{"code": "Limit Orders", "group": GroupAll},
	})
	s.mu.Unlock()

	assert.True(t, s.grants.Has("alice", privilege.LimitOrders))
	assert.True(t, s.grants.Has("bob", privilege.LimitOrders))
}

func TestDispatchLocked_UnknownPrivilegeCodeIsLoggedAndSkipped(t *testing.T) {
	s := newTestSession(false)
	s.mu.Lock()
	assert.NotPanics(t, func() {
		s.dispatchLocked(ScriptedCommand{
			Command: GrantPrivilege,
			Params:  map[string]string{"code": "Nonexistent Privilege", "group": GroupAll},
		})
	})
	s.mu.Unlock()
}

func TestDispatchLocked_OpenAndCloseMarket(t *testing.T) {
	s := newTestSession(false)
	s.mu.Lock()
	s.dispatchLocked(ScriptedCommand{Command: OpenMarket})
	s.mu.Unlock()
	assert.True(t, s.matching.MarketOpen())

	s.mu.Lock()
	s.dispatchLocked(ScriptedCommand{Command: CloseMarket})
	s.mu.Unlock()
	assert.False(t, s.matching.MarketOpen())
}
