// Package net is the wire-level adaptation of the teacher's
// internal/net: a TCP listener, per-connection worker goroutines and a
// request/report framing, generalized from fenrir's single-exchange binary
// protocol to sessionhouse's multi-session JSON protocol (spec §6 External
// Interfaces names the operations; the wire format itself is left to the
// implementation, same as the teacher's own binary framing was its choice).
//
// Framing is newline-delimited JSON: one Request or Frame object per line.
// This keeps the teacher's "read one message, dispatch, write a report"
// shape while fitting a protocol that must also carry a continuous,
// per-subscription event stream rather than only trade reports.
package net

import (
	"time"

	"github.com/shopspring/decimal"

	"sessionhouse/internal/common"
	"sessionhouse/internal/events"
	"sessionhouse/internal/session"
)

// Op enumerates the client-initiated operations (spec §6's createSession,
// start/pause/resume/end, submitOrder, cancelOrder, subscribe).
type Op string

const (
	OpCreateSession Op = "create_session"
	OpStart         Op = "start"
	OpPause         Op = "pause"
	OpResume        Op = "resume"
	OpEnd           Op = "end"
	OpCancelSession Op = "cancel_session"
	OpSubmitOrder   Op = "submit_order"
	OpCancelOrder   Op = "cancel_order"
	OpSubscribe     Op = "subscribe"
	OpUnsubscribe   Op = "unsubscribe"
	OpAuctionBid    Op = "auction_bid"
)

// Request is one client->server frame. SessionID/UserID are required by
// every op except create_session (which mints a SessionID) and apply to
// the connection's single active subscription.
type Request struct {
	ID        string          `json:"id"`
	Op        Op              `json:"op"`
	SessionID string          `json:"sessionId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Order     *OrderRequest   `json:"order,omitempty"`
	OrderID   string          `json:"orderId,omitempty"`
	Depth     int             `json:"depth,omitempty"`
	Lesson    *LessonRequest  `json:"lesson,omitempty"`
}

// OrderRequest is the wire shape of session.OrderSpec, with enums carried
// as the human-readable strings common's String() methods already produce.
type OrderRequest struct {
	SecurityID string          `json:"securityId"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Quantity   uint64          `json:"quantity"`
	LimitPrice decimal.Decimal `json:"limitPrice"`
	StopPrice  decimal.Decimal `json:"stopPrice"`
	TIF        string          `json:"tif"`
}

// ToSpec converts the wire request into the session package's OrderSpec,
// rejecting unknown enum strings outright rather than silently defaulting.
func (r *OrderRequest) ToSpec() (session.OrderSpec, error) {
	side, err := parseSide(r.Side)
	if err != nil {
		return session.OrderSpec{}, err
	}
	typ, err := parseOrderType(r.Type)
	if err != nil {
		return session.OrderSpec{}, err
	}
	tif, err := parseTIF(r.TIF)
	if err != nil {
		return session.OrderSpec{}, err
	}
	return session.OrderSpec{
		SecurityID: r.SecurityID,
		Side:       side,
		Type:       typ,
		Quantity:   r.Quantity,
		LimitPrice: r.LimitPrice,
		StopPrice:  r.StopPrice,
		TIF:        tif,
	}, nil
}

// LessonRequest is the wire shape of session.LessonPlan.
type LessonRequest struct {
	ScenarioID      string                   `json:"scenarioId"`
	MarketOpenDelay time.Duration            `json:"marketOpenDelay"`
	StartingCash    decimal.Decimal          `json:"startingCash"`
	AllowShort      bool                     `json:"allowShort"`
	Securities      []SecurityRequest        `json:"securities"`
	Roster          []string                 `json:"roster"`
	Timeline        []ScriptedCommandRequest `json:"timeline"`
}

type SecurityRequest struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TickSize   decimal.Decimal `json:"tickSize"`
	StartPrice decimal.Decimal `json:"startPrice"`
}

type ScriptedCommandRequest struct {
	Offset  time.Duration     `json:"offset"`
	Command string            `json:"command"`
	Params  map[string]string `json:"params"`
}

// ToPlan converts the wire lesson request into a session.LessonPlan.
func (r *LessonRequest) ToPlan() (session.LessonPlan, error) {
	secs := make([]session.SecuritySpec, 0, len(r.Securities))
	for _, s := range r.Securities {
		assetType, err := parseAssetType(s.Type)
		if err != nil {
			return session.LessonPlan{}, err
		}
		secs = append(secs, session.SecuritySpec{
			ID:         s.ID,
			Type:       assetType,
			TickSize:   s.TickSize,
			StartPrice: s.StartPrice,
		})
	}
	timeline := make([]session.ScriptedCommand, 0, len(r.Timeline))
	for _, c := range r.Timeline {
		cmd, err := parseCommandType(c.Command)
		if err != nil {
			return session.LessonPlan{}, err
		}
		timeline = append(timeline, session.ScriptedCommand{
			Offset:  c.Offset,
			Command: cmd,
			Params:  c.Params,
		})
	}
	return session.LessonPlan{
		ScenarioID:      r.ScenarioID,
		MarketOpenDelay: r.MarketOpenDelay,
		StartingCash:    r.StartingCash,
		AllowShort:      r.AllowShort,
		Securities:      secs,
		Timeline:        timeline,
	}, nil
}

// Response is one server->client reply frame, correlated to a Request by ID.
type Response struct {
	ID        string `json:"id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Order     *common.Order `json:"order,omitempty"`
	Snapshot  *session.Snapshot `json:"snapshot,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// EventFrame is a pushed, unsolicited server->client frame carrying one
// event from the subscribed session's bus.
type EventFrame struct {
	Event *wireEvent `json:"event"`
}

type wireEvent struct {
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

func toWireEvent(e events.Event) wireEvent {
	return wireEvent{Seq: e.Seq, SessionID: e.SessionID, Kind: e.Kind.String(), Timestamp: e.Timestamp, Payload: e.Payload}
}
