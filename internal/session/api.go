package session

import (
	"github.com/google/uuid"

	"sessionhouse/internal/book"
	"sessionhouse/internal/common"
	"sessionhouse/internal/events"
	"sessionhouse/internal/privilege"
)

// orderTypePrivilege maps an order type to the trading privilege that
// must be held to submit it (spec §4.6's trading-category codes).
func orderTypePrivilege(t common.OrderType) (privilege.Code, bool) {
	switch t {
	case common.MarketOrder:
		return privilege.MarketOrders, true
	case common.LimitOrder:
		return privilege.LimitOrders, true
	case common.StopOrder:
		return privilege.StopOrders, true
	case common.StopLimitOrder:
		return privilege.StopLimitOrders, true
	default:
		return 0, false
	}
}

// SubmitOrder is the session-gated entry point the Session API exposes
// (spec §6's submitOrder): it enforces lifecycle and privilege before
// ever handing the order to the matching engine.
func (s *Session) SubmitOrder(userID string, spec OrderSpec) (*common.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != InProgress {
		return nil, common.NewEngineError(common.SessionStateError, "session not in-progress", common.ErrSessionNotRunning)
	}
	if code, ok := orderTypePrivilege(spec.Type); ok && !s.grants.Has(userID, code) {
		return nil, common.NewEngineError(common.PrivilegeError, "missing required trading privilege", common.ErrPrivilegeRequired)
	}
	if spec.Side == common.Sell && s.matching.AllowShort && !s.grants.Has(userID, privilege.ShortSelling) {
		have := s.portfolio.PositionQty(userID, spec.SecurityID)
		if int64(spec.Quantity) > have {
			return nil, common.NewEngineError(common.PrivilegeError, "short selling requires a privilege", common.ErrPrivilegeRequired)
		}
	}

	order := &common.Order{
		SessionID:  s.ID,
		UserID:     userID,
		SecurityID: spec.SecurityID,
		Side:       spec.Side,
		Type:       spec.Type,
		Quantity:   spec.Quantity,
		LimitPrice: spec.LimitPrice,
		StopPrice:  spec.StopPrice,
		TIF:        spec.TIF,
	}
	placed, err := s.matching.Submit(order)
	if placed != nil {
		s.writeAudit("order.submitted", placed)
	}
	return placed, err
}

// CancelOrder cancels a resting or pending-trigger order. A user holding
// CancelAnyOrder may cancel any order in the session; otherwise only the
// order's own owner may cancel it (spec §4.6, §7 NotFound).
func (s *Session) CancelOrder(userID, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	if s.grants.Has(userID, privilege.CancelAnyOrder) {
		ok = s.matching.CancelAny(orderID)
	} else {
		ok = s.matching.Cancel(orderID, userID)
	}
	if ok {
		s.writeAudit("order.cancelled", map[string]string{"orderId": orderID, "byUser": userID})
	}
	return ok
}

// Subscribe registers userID for this session's event stream and returns
// a consistent snapshot alongside it (spec §6's subscribe contract,
// §4.5's snapshot+delta). depth is the requested book depth; 0 selects
// the session's configured default.
func (s *Session) Subscribe(userID string, depth int) (Snapshot, <-chan events.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if depth <= 0 {
		depth = s.snapshotDepth
	}
	subscriptionID := uuid.NewString()
	startSeq, stream, busUnsub := s.bus.Subscribe(subscriptionID, userID)
	if s.metrics != nil {
		s.metrics.SubscriberJoined()
	}
	left := false
	unsub := func() {
		busUnsub()
		if s.metrics != nil && !left {
			left = true
			s.metrics.SubscriberLeft()
		}
	}

	books := make(map[string]book.Snapshot, len(s.Plan.Securities))
	for _, secSpec := range s.Plan.Securities {
		if b, ok := s.matching.Book(secSpec.ID); ok {
			books[secSpec.ID] = b.Snapshot(depth)
		}
	}

	snap := Snapshot{
		SessionID:  s.ID,
		State:      s.state,
		MarketOpen: s.matching.MarketOpen(),
		StartSeq:   startSeq,
		Books:      books,
		OwnOrders:  s.matching.LiveOrdersFor(userID),
		Portfolio:  s.portfolio.Snapshot(userID),
		Privileges: s.grants.CodesFor(userID),
	}
	return snap, stream, unsub
}
