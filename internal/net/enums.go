package net

import (
	"fmt"
	"strings"

	"sessionhouse/internal/common"
	"sessionhouse/internal/session"
)

func parseSide(s string) (common.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return common.Buy, nil
	case "SELL":
		return common.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseOrderType(s string) (common.OrderType, error) {
	switch strings.ToUpper(s) {
	case "MARKET":
		return common.MarketOrder, nil
	case "LIMIT":
		return common.LimitOrder, nil
	case "STOP":
		return common.StopOrder, nil
	case "STOP_LIMIT":
		return common.StopLimitOrder, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parseTIF(s string) (common.TimeInForce, error) {
	switch strings.ToUpper(s) {
	case "", "DAY":
		return common.Day, nil
	case "IOC":
		return common.ImmediateOrCancel, nil
	case "FOK":
		return common.FillOrKill, nil
	case "GTC":
		return common.GoodTillCancelled, nil
	default:
		return 0, fmt.Errorf("unknown time-in-force %q", s)
	}
}

func parseAssetType(s string) (common.AssetType, error) {
	switch strings.ToUpper(s) {
	case "", "EQUITY":
		return common.Equity, nil
	case "BOND":
		return common.Bond, nil
	case "OPTION":
		return common.Option, nil
	case "FUTURE":
		return common.Future, nil
	default:
		return 0, fmt.Errorf("unknown asset type %q", s)
	}
}

func parseCommandType(s string) (session.CommandType, error) {
	switch strings.ToLower(s) {
	case "grant-privilege", "grant_privilege":
		return session.GrantPrivilege, nil
	case "remove-privilege", "remove_privilege":
		return session.RemovePrivilege, nil
	case "open-market", "open_market":
		return session.OpenMarket, nil
	case "close-market", "close_market":
		return session.CloseMarket, nil
	case "set-liquidity-trader", "set_liquidity_trader":
		return session.SetLiquidityTrader, nil
	case "create-auction", "create_auction":
		return session.CreateAuction, nil
	case "start-auction", "start_auction":
		return session.StartAuction, nil
	case "set-holding-value", "set_holding_value":
		return session.SetHoldingValue, nil
	default:
		return 0, fmt.Errorf("unknown scripted command %q", s)
	}
}
