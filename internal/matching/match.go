package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sessionhouse/internal/book"
	"sessionhouse/internal/common"
	"sessionhouse/internal/events"
)

// execute runs a market or limit order to completion synchronously (spec
// §4.2 steps 3-5). Stop/stop-limit orders never reach here directly — they
// are re-dispatched through checkTriggers once triggered.
func (e *Engine) execute(order *common.Order) {
	e.live[order.ID] = order
	b := e.books[order.SecurityID]

	if order.TIF == common.FillOrKill {
		limited := order.Type == common.LimitOrder
		if e.availableLiquidity(b, order, limited) < order.Remaining {
			order.Status = common.Rejected
			order.RejectReason = common.ErrFillOrKillShortfall.Error()
			delete(e.live, order.ID)
			e.publish(events.OrderRejected, events.OrderRejectedPayload{Order: *order, Reason: order.RejectReason})
			return
		}
	}

	e.sweep(b, order, order.Type == common.LimitOrder)
	e.finalizeResidual(b, order)
}

// sweep consumes the opposite ladder in price-improving order (spec
// §4.1 walk), stopping when the taker is filled, the book is exhausted, or
// (for limited=true) the next level no longer satisfies the taker's limit.
func (e *Engine) sweep(b *book.OrderBook, taker *common.Order, limited bool) {
	oppSide := taker.Side.Opposite()
	for taker.Remaining > 0 {
		lvl, ok := b.BestMut(oppSide)
		if !ok {
			break
		}
		if limited && !crosses(taker, lvl.Price) {
			break
		}

		i := 0
		var consumedFull []*common.Order
		for i < len(lvl.Orders) && taker.Remaining > 0 {
			maker := lvl.Orders[i]
			qty := min(taker.Remaining, maker.Remaining)
			e.applyFill(taker, maker, qty, lvl.Price)
			if maker.Remaining == 0 {
				consumedFull = append(consumedFull, maker)
				i++
			}
		}
		if i > 0 {
			lvl.Orders = lvl.Orders[i:]
		}
		lvl.Quantity = sumRemaining(lvl.Orders)
		b.Reindex(lvl, consumedFull)
		if lvl.empty() {
			b.DeleteLevel(lvl)
		}
	}
}

func crosses(taker *common.Order, levelPrice decimal.Decimal) bool {
	if taker.Side == common.Buy {
		return levelPrice.LessThanOrEqual(taker.LimitPrice)
	}
	return levelPrice.GreaterThanOrEqual(taker.LimitPrice)
}

func sumRemaining(orders []*common.Order) uint64 {
	var total uint64
	for _, o := range orders {
		total += o.Remaining
	}
	return total
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// applyFill books one partial execution: book first, then both portfolio
// legs, then publish trade/book-updated/order-updated (spec §4.2 step 5).
func (e *Engine) applyFill(taker, maker *common.Order, qty uint64, price decimal.Decimal) {
	now := time.Now()
	taker.Remaining -= qty
	maker.Remaining -= qty
	updateExecutionStatus(taker, now)
	updateExecutionStatus(maker, now)

	trade := common.Trade{
		ID:           uuid.NewString(),
		SessionID:    e.SessionID,
		SecurityID:   taker.SecurityID,
		Price:        price,
		Quantity:     qty,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		TakerUserID:  taker.UserID,
		MakerUserID:  maker.UserID,
		TakerSide:    taker.Side,
		Timestamp:    now,
	}

	var buyUser, sellUser string
	if taker.Side == common.Buy {
		buyUser, sellUser = taker.UserID, maker.UserID
	} else {
		buyUser, sellUser = maker.UserID, taker.UserID
	}
	e.portfolio.OnTrade(buyUser, taker.SecurityID, int64(qty), price)
	e.portfolio.OnTrade(sellUser, taker.SecurityID, -int64(qty), price)
	e.portfolio.OnMark(taker.SecurityID, price)

	e.books[taker.SecurityID].PublishLast(price, qty, now)

	if e.metrics != nil {
		e.metrics.TradesExecuted.Inc()
		e.metrics.OrdersMatched.Inc()
	}
	e.publish(events.TradeExecuted, events.TradePayload{Trade: trade})
	e.publish(events.BookUpdated, events.BookUpdatedPayload{SecurityID: taker.SecurityID, Last: trade})
	e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *taker})
	e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *maker})
	e.publish(events.PortfolioUpdated, events.PortfolioUpdatedPayload{Snapshot: e.portfolio.Snapshot(buyUser)})
	e.publish(events.PortfolioUpdated, events.PortfolioUpdatedPayload{Snapshot: e.portfolio.Snapshot(sellUser)})

	if maker.Status.IsTerminal() {
		delete(e.live, maker.ID)
	}
	e.checkTriggers(taker.SecurityID, price)
}

func updateExecutionStatus(o *common.Order, now time.Time) {
	if o.Remaining == 0 {
		o.Status = common.Filled
		o.ExecutedAt = now
	} else {
		o.Status = common.PartiallyFilled
	}
}

// finalizeResidual disposes of whatever quantity execute's sweep did not
// consume, per the TIF table in spec §4.2.
func (e *Engine) finalizeResidual(b *book.OrderBook, order *common.Order) {
	now := time.Now()
	if order.Remaining == 0 {
		order.Status = common.Filled
		order.ExecutedAt = now
		delete(e.live, order.ID)
		e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *order})
		return
	}

	switch {
	case order.TIF == common.ImmediateOrCancel:
		order.Status = common.Cancelled
		order.CancelledAt = now
		delete(e.live, order.ID)
	case order.TIF == common.FillOrKill:
		// Unreachable in practice: FillOrKill is pre-checked in execute to
		// either fully fill or reject before any trade runs.
		order.Status = common.Cancelled
		order.CancelledAt = now
		delete(e.live, order.ID)
	case order.Type == common.LimitOrder && order.TIF.RestsOnBook():
		b.AddResting(order)
		if order.Filled() > 0 {
			order.Status = common.PartiallyFilled
		} else {
			order.Status = common.Pending
		}
	default:
		// Market order residual under Day/GTC: markets never rest.
		order.Status = common.Cancelled
		order.CancelledAt = now
		order.RejectReason = "insufficient liquidity for residual"
		delete(e.live, order.ID)
	}
	e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *order})
}

// availableLiquidity sums resting quantity on the opposite ladder that the
// order could cross, used for the Fill-or-Kill pre-check (spec §4.2/§7):
// a FOK order is rejected with no trades and no book change unless the
// whole quantity can be filled.
func (e *Engine) availableLiquidity(b *book.OrderBook, order *common.Order, limited bool) uint64 {
	var sum uint64
	for _, lvl := range b.LevelsOn(order.Side.Opposite()) {
		if limited && !crosses(order, lvl.Price) {
			break
		}
		sum += lvl.Quantity
		if sum >= order.Remaining {
			break
		}
	}
	return sum
}

// Cancel removes a resting or pending-trigger order by id, verifying
// ownership. Returns false (no error) if the id is unknown, already
// terminal, or owned by someone else (spec §4.2, §7 NotFound).
func (e *Engine) Cancel(orderID, byUser string) bool {
	o, ok := e.live[orderID]
	if !ok || o.UserID != byUser || o.Status.IsTerminal() {
		return false
	}
	return e.cancelOrder(o)
}

// CancelAny cancels a resting or pending-trigger order regardless of
// owner. Reserved for callers that have already verified the requester
// holds the CancelAnyOrder privilege (spec §4.6 registry entry).
func (e *Engine) CancelAny(orderID string) bool {
	o, ok := e.live[orderID]
	if !ok || o.Status.IsTerminal() {
		return false
	}
	return e.cancelOrder(o)
}

func (e *Engine) cancelOrder(o *common.Order) bool {
	if o.Status == common.PendingTrigger {
		e.removeTrigger(o)
	} else {
		e.books[o.SecurityID].Remove(o.ID)
	}
	o.Status = common.Cancelled
	o.CancelledAt = time.Now()
	delete(e.live, o.ID)
	e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *o})
	return true
}

func (e *Engine) removeTrigger(o *common.Order) {
	pending := e.triggers[o.SecurityID]
	for i, p := range pending {
		if p.ID == o.ID {
			e.triggers[o.SecurityID] = append(pending[:i], pending[i+1:]...)
			return
		}
	}
}

// checkTriggers re-evaluates every pending-trigger order for a security
// against a newly published price (spec §4.2 "Stop triggers" and open
// question #3: triggers run on any published last-price change, whether
// produced by this session's own trades or an external mark). Recursion
// is naturally bounded: a triggered order leaves the pending list and can
// never be reconsidered by the same call chain; triggerDepth is a static
// backstop against reentrancy bugs, not the normal termination condition.
func (e *Engine) checkTriggers(securityID string, price decimal.Decimal) {
	if e.triggerDepth > maxTriggerDepth {
		e.log.Warn().Str("securityID", securityID).Msg("stop-trigger recursion bound reached, dropping remaining triggers")
		return
	}
	e.triggerDepth++
	defer func() { e.triggerDepth-- }()

	pending := e.triggers[securityID]
	if len(pending) == 0 {
		return
	}
	var fire []*common.Order
	var keep []*common.Order
	for _, o := range pending {
		if stopFires(o, price) {
			fire = append(fire, o)
		} else {
			keep = append(keep, o)
		}
	}
	e.triggers[securityID] = keep

	for _, o := range fire {
		if o.Type == common.StopOrder {
			o.Type = common.MarketOrder
		} else {
			o.Type = common.LimitOrder
		}
		o.Status = common.Pending
		e.publish(events.OrderUpdated, events.OrderUpdatedPayload{Order: *o})
		e.execute(o)
	}
}

func stopFires(o *common.Order, price decimal.Decimal) bool {
	if o.Side == common.Buy {
		return price.GreaterThanOrEqual(o.StopPrice)
	}
	return price.LessThanOrEqual(o.StopPrice)
}

// OnExternalMark applies a scripted mark-to-market update that did not
// come from a trade in this book (e.g. a lesson command). It still counts
// as a last-price change for stop-trigger purposes (open question #3).
func (e *Engine) OnExternalMark(securityID string, price decimal.Decimal) {
	b, ok := e.books[securityID]
	if !ok {
		return
	}
	now := time.Now()
	b.PublishLast(price, 0, now)
	e.portfolio.OnMark(securityID, price)
	e.publish(events.BookUpdated, events.BookUpdatedPayload{
		SecurityID: securityID,
		Last:       common.Trade{SecurityID: securityID, Price: price, Timestamp: now},
	})
	e.checkTriggers(securityID, price)
}
