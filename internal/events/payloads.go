package events

import "sessionhouse/internal/common"

// OrderAcceptedPayload/OrderRejectedPayload/OrderUpdatedPayload carry a
// snapshot of the order at the moment of the event, not a live pointer —
// subscribers must never be able to mutate session state.
type OrderAcceptedPayload struct {
	Order common.Order
}

func (p OrderAcceptedPayload) OwnerUserID() string { return p.Order.UserID }

type OrderRejectedPayload struct {
	Order  common.Order
	Reason string
}

func (p OrderRejectedPayload) OwnerUserID() string { return p.Order.UserID }

type OrderUpdatedPayload struct {
	Order common.Order
}

func (p OrderUpdatedPayload) OwnerUserID() string { return p.Order.UserID }

// TradePayload is published once per trade. It is not Owned, so every
// subscriber receives it; BookUpdatedPayload repeats the trade as the
// book's last trade.
type TradePayload struct {
	Trade common.Trade
}

type BookUpdatedPayload struct {
	SecurityID string
	Last       common.Trade
}

type MarketOpenedPayload struct {
	SecurityIDs []string
}

type MarketClosedPayload struct {
	SecurityIDs []string
}

type PortfolioUpdatedPayload struct {
	Snapshot common.PortfolioSnapshot
}

func (p PortfolioUpdatedPayload) OwnerUserID() string { return p.Snapshot.UserID }

type SessionStateChangedPayload struct {
	Status string
}

type PrivilegeChangedPayload struct {
	UserID string
	Code   int
	Granted bool
}

func (p PrivilegeChangedPayload) OwnerUserID() string { return p.UserID }

type AuctionStartedPayload struct {
	AuctionID     string
	PrivilegeCode int
	Available     int
	CurrentPrice  string
}

type AuctionBidPayload struct {
	AuctionID string
	UserID    string
	Price     string
}

type AuctionClosedPayload struct {
	AuctionID string
	Winners   []string
	Price     string
}

type SubscriberSlowPayload struct {
	UserID string
}

func (p SubscriberSlowPayload) OwnerUserID() string { return p.UserID }
