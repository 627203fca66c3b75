// Package privilege holds the fixed, process-wide enumeration of
// capability codes (spec §4.6) and the per-(session, user) grant table
// consulted by the session engine before accepting commands or orders.
package privilege

// Category groups privilege codes for display/auction purposes.
type Category string

const (
	Trading    Category = "trading"
	MarketData Category = "market-data"
	Analysis   Category = "analysis"
	Admin      Category = "admin"
	Utility    Category = "utility"
)

// Code is a stable integer id from the fixed enumeration below. Codes are
// never reused or renumbered once published to a lesson author.
type Code int

const (
	ShortSelling Code = iota + 1
	MarginTrading
	StopOrders
	StopLimitOrders
	MarketOrders
	LimitOrders
	CancelAnyOrder
	ExtendedHours
	LargeOrderSize
	DirectMarketAccess
	MarketMaking
	Level2Quotes
	Level3Quotes
	TimeAndSales
	HistoricalCharts
	NewsFeed
	OrderFlowAnalytics
	VWAPIndicator
	MovingAverages
	VolatilityIndicator
	OptionsChain
	FuturesCurve
	PnLAttribution
	RiskDashboard
	PeerLeaderboard
	SessionPause
	SessionOverride
	GrantPrivilege
	RemovePrivilege
	ForceLiquidate
	AuctionParticipant
	AuctionHost
	SetHoldingValue
	LiquidityProviderControl
	ReplayTape
)

// Definition describes one privilege code.
type Definition struct {
	Code        Code
	Name        string
	Category    Category
	Auctionable bool
	MaxHolders  int // 0 == unlimited
}

// Registry is the immutable, process-wide table of every known privilege.
// It never changes at runtime; per-session grants live in Grants
// (grants.go), one table per session.
var Registry = []Definition{
	{ShortSelling, "Short Selling", Trading, true, 0},
	{MarginTrading, "Margin Trading", Trading, true, 0},
	{StopOrders, "Stop Orders", Trading, false, 0},
	{StopLimitOrders, "Stop-Limit Orders", Trading, false, 0},
	{MarketOrders, "Market Orders", Trading, false, 0},
	{LimitOrders, "Limit Orders", Trading, false, 0},
	{CancelAnyOrder, "Cancel Any Order", Admin, false, 0},
	{ExtendedHours, "Extended Hours Trading", Trading, true, 0},
	{LargeOrderSize, "Large Order Size", Trading, true, 0},
	{DirectMarketAccess, "Direct Market Access", Trading, true, 5},
	{MarketMaking, "Market Making", Trading, true, 3},
	{Level2Quotes, "Level II Quotes", MarketData, true, 0},
	{Level3Quotes, "Level III Quotes", MarketData, true, 0},
	{TimeAndSales, "Time & Sales Tape", MarketData, false, 0},
	{HistoricalCharts, "Historical Charts", MarketData, false, 0},
	{NewsFeed, "News Feed", MarketData, true, 0},
	{OrderFlowAnalytics, "Order Flow Analytics", Analysis, true, 0},
	{VWAPIndicator, "VWAP Indicator", Analysis, false, 0},
	{MovingAverages, "Moving Averages", Analysis, false, 0},
	{VolatilityIndicator, "Volatility Indicator", Analysis, false, 0},
	{OptionsChain, "Options Chain", MarketData, true, 0},
	{FuturesCurve, "Futures Curve", MarketData, true, 0},
	{PnLAttribution, "P&L Attribution", Analysis, false, 0},
	{RiskDashboard, "Risk Dashboard", Analysis, true, 0},
	{PeerLeaderboard, "Peer Leaderboard", Analysis, false, 0},
	{SessionPause, "Pause Session", Admin, false, 1},
	{SessionOverride, "Session Override", Admin, false, 1},
	{GrantPrivilege, "Grant Privilege", Admin, false, 1},
	{RemovePrivilege, "Remove Privilege", Admin, false, 1},
	{ForceLiquidate, "Force Liquidate", Admin, false, 1},
	{AuctionParticipant, "Auction Participant", Utility, false, 0},
	{AuctionHost, "Auction Host", Admin, false, 1},
	{SetHoldingValue, "Set Holding Value", Admin, false, 1},
	{LiquidityProviderControl, "Liquidity Provider Control", Admin, false, 1},
	{ReplayTape, "Replay Tape", Utility, true, 0},
}

var byCode = func() map[Code]Definition {
	m := make(map[Code]Definition, len(Registry))
	for _, d := range Registry {
		m[d.Code] = d
	}
	return m
}()

var byName = func() map[string]Code {
	m := make(map[string]Code, len(Registry))
	for _, d := range Registry {
		m[d.Name] = d.Code
	}
	return m
}()

// Lookup returns the definition for a code and whether it exists.
func Lookup(code Code) (Definition, bool) {
	d, ok := byCode[code]
	return d, ok
}

// LookupByName resolves a lesson-authored privilege name (exact match
// against Definition.Name) to its stable Code, for scripted commands that
// name privileges as human-readable strings.
func LookupByName(name string) (Code, bool) {
	c, ok := byName[name]
	return c, ok
}
