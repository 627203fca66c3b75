package session

import (
	"time"

	"github.com/shopspring/decimal"

	"sessionhouse/internal/common"
	"sessionhouse/internal/privilege"
)

// SecuritySpec is one tradable instrument as configured by a lesson
// (spec §6: "a list of securities with starting prices").
type SecuritySpec struct {
	ID         string
	Type       common.AssetType
	TickSize   decimal.Decimal
	StartPrice decimal.Decimal
}

// CommandType enumerates the scripted commands of spec §4.4's table.
type CommandType int

const (
	GrantPrivilege CommandType = iota
	RemovePrivilege
	OpenMarket
	CloseMarket
	SetLiquidityTrader
	CreateAuction
	StartAuction
	SetHoldingValue
)

func (c CommandType) String() string {
	switch c {
	case GrantPrivilege:
		return "grant-privilege"
	case RemovePrivilege:
		return "remove-privilege"
	case OpenMarket:
		return "open-market"
	case CloseMarket:
		return "close-market"
	case SetLiquidityTrader:
		return "set-liquidity-trader"
	case CreateAuction:
		return "create-auction"
	case StartAuction:
		return "start-auction"
	case SetHoldingValue:
		return "set-holding-value"
	default:
		return "unknown"
	}
}

// ScriptedCommand is one (offset, command, parameters) tuple from the
// lesson's timeline (spec §6). Params is intentionally a loose string map:
// the lesson author's scenario format decides its own parameter grammar,
// and the session engine interprets it per command.
type ScriptedCommand struct {
	Offset  time.Duration
	Command CommandType
	Params  map[string]string
}

// LessonPlan is the parsed form the session engine consumes (spec §6).
type LessonPlan struct {
	ScenarioID      string
	MarketOpenDelay time.Duration
	Securities      []SecuritySpec
	StartingCash    decimal.Decimal
	AllowShort      bool // spec §9 Open Question 1: per-lesson policy bit
	Timeline        []ScriptedCommand
}

// group token constants for GrantPrivilege/RemovePrivilege/SetHoldingValue
// parameters (spec §4.4's group resolution).
const (
	GroupAll         = "$All"
	GroupSpeculators = "$Speculators"
	GroupMarketMakers = "$MarketMakers"
)

// resolveGroup expands a group token into the concrete user ids it names
// (spec §4.4: "$All = every participant; $Speculators = participants
// without the market-making privilege; $MarketMakers = participants with
// it; any other token is a username match").
func resolveGroup(token string, roster []string, grants *privilege.Grants) []string {
	switch token {
	case GroupAll:
		return roster
	case GroupSpeculators:
		var out []string
		for _, u := range roster {
			if !grants.Has(u, privilege.MarketMaking) {
				out = append(out, u)
			}
		}
		return out
	case GroupMarketMakers:
		var out []string
		for _, u := range roster {
			if grants.Has(u, privilege.MarketMaking) {
				out = append(out, u)
			}
		}
		return out
	default:
		for _, u := range roster {
			if u == token {
				return []string{token}
			}
		}
		return nil
	}
}
