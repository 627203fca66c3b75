// Package liquidity implements the synthetic market-making participant
// named in spec §4.4: it posts a bid and an ask around a security's
// reference price, refreshed at a configurable interval, never crossing
// itself, replacing its quotes atomically (cancel then add), and pulling
// its quotes the moment it is disabled.
package liquidity

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sessionhouse/internal/common"
)

const DefaultRefreshInterval = 5 * time.Second

// Engine is the narrow collaborator the provider needs from the matching
// engine: enough to quote and pull quotes, nothing else.
type Engine interface {
	Submit(order *common.Order) (*common.Order, error)
	Cancel(orderID, byUser string) bool
}

// Provider is one synthetic quoting participant for one security. A
// session creates one per security that has liquidity enabled.
type Provider struct {
	SecurityID string
	UserID     string // synthetic participant id, e.g. "liquidity:AOE"

	spread  decimal.Decimal // full bid/ask spread around the reference price
	size    uint64
	refresh time.Duration
	enabled bool

	bidOrderID  string
	askOrderID  string
	lastRequote time.Time

	engine Engine
	log    zerolog.Logger
}

func New(securityID string, engine Engine, log zerolog.Logger) *Provider {
	return &Provider{
		SecurityID: securityID,
		UserID:     "liquidity:" + securityID,
		spread:     decimal.NewFromFloat(0.10),
		size:       100,
		refresh:    DefaultRefreshInterval,
		engine:     engine,
		log:        log.With().Str("securityID", securityID).Str("component", "liquidity").Logger(),
	}
}

// RefreshInterval returns the currently configured requote cadence.
func (p *Provider) RefreshInterval() time.Duration { return p.refresh }

// DueForRequote reports whether at least one refresh interval has elapsed
// since the last requote, for a caller driving the refresh loop on a
// coarser fixed tick.
func (p *Provider) DueForRequote(now time.Time) bool {
	return now.Sub(p.lastRequote) >= p.refresh
}

// Configure applies one (setting, value) pair from a "Set Liquidity
// Trader" scripted command (spec §4.4's command table). Unknown settings
// are logged and ignored rather than rejecting the whole command, matching
// the failure semantics of §4.4 ("command execution errors are logged and
// do not abort the session").
func (p *Provider) Configure(setting, value string) {
	switch setting {
	case "spread":
		if d, err := decimal.NewFromString(value); err == nil {
			p.spread = d
		} else {
			p.log.Warn().Str("value", value).Msg("invalid spread value")
		}
	case "size":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			p.size = n
		} else {
			p.log.Warn().Str("value", value).Msg("invalid size value")
		}
	case "refresh":
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			p.refresh = time.Duration(secs) * time.Second
		} else {
			p.log.Warn().Str("value", value).Msg("invalid refresh value")
		}
	case "enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			p.log.Warn().Str("value", value).Msg("invalid enabled value")
			return
		}
		if !enabled {
			p.Disable()
		}
		p.enabled = enabled
	default:
		p.log.Warn().Str("setting", setting).Msg("unknown liquidity trader setting")
	}
}

// Requote cancels any existing quotes and posts a fresh bid/ask pair
// around refPrice, wide enough that the two legs never cross. No-op if
// the provider is disabled.
func (p *Provider) Requote(refPrice decimal.Decimal) {
	if !p.enabled {
		return
	}
	p.pullQuotes()
	p.lastRequote = time.Now()

	half := p.spread.Div(decimal.NewFromInt(2))
	bidPrice := refPrice.Sub(half)
	askPrice := refPrice.Add(half)
	if bidPrice.IsNegative() {
		bidPrice = decimal.Zero
	}

	bid := &common.Order{
		UserID:     p.UserID,
		SecurityID: p.SecurityID,
		Side:       common.Buy,
		Type:       common.LimitOrder,
		Quantity:   p.size,
		LimitPrice: bidPrice,
		TIF:        common.GoodTillCancelled,
	}
	ask := &common.Order{
		UserID:     p.UserID,
		SecurityID: p.SecurityID,
		Side:       common.Sell,
		Type:       common.LimitOrder,
		Quantity:   p.size,
		LimitPrice: askPrice,
		TIF:        common.GoodTillCancelled,
	}

	if placed, err := p.engine.Submit(bid); err == nil {
		p.bidOrderID = placed.ID
	} else {
		p.log.Warn().Err(err).Msg("liquidity bid rejected")
	}
	if placed, err := p.engine.Submit(ask); err == nil {
		p.askOrderID = placed.ID
	} else {
		p.log.Warn().Err(err).Msg("liquidity ask rejected")
	}
}

// Disable cancels any resting quotes and stops further requoting until
// re-enabled.
func (p *Provider) Disable() {
	p.pullQuotes()
	p.enabled = false
}

func (p *Provider) pullQuotes() {
	if p.bidOrderID != "" {
		p.engine.Cancel(p.bidOrderID, p.UserID)
		p.bidOrderID = ""
	}
	if p.askOrderID != "" {
		p.engine.Cancel(p.askOrderID, p.UserID)
		p.askOrderID = ""
	}
}

// Enabled reports whether the provider is currently quoting.
func (p *Provider) Enabled() bool { return p.enabled }
