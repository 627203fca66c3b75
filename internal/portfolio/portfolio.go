// Package portfolio implements the per-session cash and position ledger
// (spec §4.3): trade application, cost-basis tracking, realized/unrealized
// P&L and mark-to-market. It is an injected collaborator of the matching
// engine — it never reaches back into matching or book state, only
// receives narrow notifications (spec §9's "narrow trade-application
// interface").
package portfolio

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sessionhouse/internal/common"
)

type Engine struct {
	sessionID string
	startCash decimal.Decimal
	ledgers   map[string]*common.Portfolio // userID -> portfolio
	marks     map[string]decimal.Decimal   // securityID -> last mark price
	log       zerolog.Logger
}

func New(sessionID string, startCash decimal.Decimal, log zerolog.Logger) *Engine {
	return &Engine{
		sessionID: sessionID,
		startCash: startCash,
		ledgers:   make(map[string]*common.Portfolio),
		marks:     make(map[string]decimal.Decimal),
		log:       log.With().Str("sessionID", sessionID).Logger(),
	}
}

// SetStartCash changes the default starting cash applied to users who
// have not yet been touched by a trade or an explicit overwrite.
func (e *Engine) SetStartCash(amount decimal.Decimal) {
	e.startCash = amount
}

// OverwriteCash implements the "Set Holding Value" lesson command (spec
// §4.4): it directly sets one user's cash balance, named as a scripted
// administrative action rather than a trade, so it is exempt from the
// "starting cash does not change except through executed trades"
// invariant of spec §3 (that invariant describes passive drift, not an
// instructor's deliberate command).
func (e *Engine) OverwriteCash(userID string, amount decimal.Decimal) {
	p := e.ledger(userID)
	p.Cash = amount
}

// SeedPosition directly sets a user's holding in a security without
// touching cash or realized P&L. Used to give the synthetic liquidity
// provider starting inventory to quote against (spec §4.4), an
// administrative seeding operation rather than a trade.
func (e *Engine) SeedPosition(userID, securityID string, qty int64, basis decimal.Decimal) {
	p := e.ledger(userID)
	pos := e.position(p, securityID)
	pos.Quantity = qty
	pos.Basis = basis
	if mark, ok := e.marks[securityID]; ok {
		pos.UnrealizedPnL = decimal.NewFromInt(pos.Quantity).Mul(mark.Sub(pos.Basis))
	}
}

func (e *Engine) ledger(userID string) *common.Portfolio {
	p, ok := e.ledgers[userID]
	if !ok {
		p = &common.Portfolio{
			SessionID: e.sessionID,
			UserID:    userID,
			Cash:      e.startCash,
			StartCash: e.startCash,
			Positions: make(map[string]*common.Position),
		}
		e.ledgers[userID] = p
	}
	return p
}

func (e *Engine) position(p *common.Portfolio, securityID string) *common.Position {
	pos, ok := p.Positions[securityID]
	if !ok {
		pos = &common.Position{SessionID: p.SessionID, UserID: p.UserID, SecurityID: securityID}
		p.Positions[securityID] = pos
	}
	return pos
}

// PositionQty returns the signed quantity held, 0 for an unknown user or
// security (an unknown user implicitly starts flat, per §4.3's "returns
// the starting snapshot and records the user implicitly").
func (e *Engine) PositionQty(userID, securityID string) int64 {
	p := e.ledger(userID)
	pos, ok := p.Positions[securityID]
	if !ok {
		return 0
	}
	return pos.Quantity
}

// OnTrade applies one leg of a trade: cash moves by -(signedQty * price),
// and the position's cost basis/realized P&L update per the "close then
// open" rule fixed by spec §9's Open Question decision. Infallible by
// contract (spec §4.3) — all validation happens in the matching engine
// before the fill is ever applied.
func (e *Engine) OnTrade(userID, securityID string, signedQty int64, price decimal.Decimal) {
	p := e.ledger(userID)
	pos := e.position(p, securityID)

	notional := price.Mul(decimal.NewFromInt(signedQty))
	p.Cash = p.Cash.Sub(notional)

	oldQty := pos.Quantity
	newQty := oldQty + signedQty

	switch {
	case oldQty == 0 || sameSign(oldQty, signedQty):
		// Adding to a flat or same-signed position: volume-weighted average.
		oldAbs := decimal.NewFromInt(abs(oldQty))
		addAbs := decimal.NewFromInt(abs(signedQty))
		newAbs := decimal.NewFromInt(abs(newQty))
		if newAbs.IsZero() {
			pos.Basis = decimal.Zero
		} else {
			pos.Basis = oldAbs.Mul(pos.Basis).Add(addAbs.Mul(price)).Div(newAbs)
		}
	default:
		// Closing or reversing.
		closing := min64(abs(signedQty), abs(oldQty))
		sign := decimal.NewFromInt(signOf(oldQty))
		realized := decimal.NewFromInt(closing).Mul(price.Sub(pos.Basis)).Mul(sign)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		p.RealizedPnL = p.RealizedPnL.Add(realized)

		if signOf(newQty) != signOf(oldQty) && newQty != 0 {
			// Reversed: residual on the new side is priced at the trade.
			pos.Basis = price
		}
		// Else: basis is unchanged for any residual on the same side,
		// or irrelevant if the position is now flat.
	}
	pos.Quantity = newQty
	if mark, ok := e.marks[securityID]; ok {
		pos.UnrealizedPnL = decimal.NewFromInt(pos.Quantity).Mul(mark.Sub(pos.Basis))
	}
}

// OnMark re-values every holder of a security against a new mark price
// (spec §4.3): unrealized = qty * (price - basis). Invoked by the matching
// engine on every new last trade, and by scripted mark-to-market events.
func (e *Engine) OnMark(securityID string, price decimal.Decimal) {
	e.marks[securityID] = price
	for _, p := range e.ledgers {
		pos, ok := p.Positions[securityID]
		if !ok || pos.IsFlat() {
			continue
		}
		pos.UnrealizedPnL = decimal.NewFromInt(pos.Quantity).Mul(price.Sub(pos.Basis))
	}
}

// Snapshot returns the read-only view handed to subscribers and consulted
// by matching validation. Unknown users get the starting snapshot without
// mutating the ledger table; a user is recorded once a trade, a position
// query, a cash overwrite, a seeded position or a Reset touches them.
func (e *Engine) Snapshot(userID string) common.PortfolioSnapshot {
	p, ok := e.ledgers[userID]
	if !ok {
		return common.PortfolioSnapshot{
			UserID:      userID,
			Cash:        e.startCash,
			TotalEquity: e.startCash,
		}
	}
	positions := make([]common.Position, 0, len(p.Positions))
	var unrealized decimal.Decimal
	for _, pos := range p.Positions {
		if pos.IsFlat() {
			continue
		}
		positions = append(positions, *pos)
		unrealized = unrealized.Add(pos.UnrealizedPnL)
	}
	return common.PortfolioSnapshot{
		UserID:        userID,
		Cash:          p.Cash,
		TotalEquity:   p.TotalEquity(e.marks),
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: unrealized,
		Positions:     positions,
	}
}

// Reset restores a user's starting cash and clears positions
// (administrative operation named in spec §4.3).
func (e *Engine) Reset(userID string) {
	e.ledgers[userID] = &common.Portfolio{
		SessionID: e.sessionID,
		UserID:    userID,
		Cash:      e.startCash,
		StartCash: e.startCash,
		Positions: make(map[string]*common.Position),
	}
}

func sameSign(a, b int64) bool {
	return (a >= 0) == (b >= 0)
}

func signOf(a int64) int64 {
	if a < 0 {
		return -1
	}
	return 1
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
