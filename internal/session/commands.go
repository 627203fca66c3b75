package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sessionhouse/internal/auction"
	"sessionhouse/internal/events"
	"sessionhouse/internal/liquidity"
	"sessionhouse/internal/privilege"
)

// dispatchLocked executes one scripted command. Errors are logged and do
// not abort the session; invalid commands are reported but skipped (spec
// §4.4's failure semantics). Caller must hold s.mu.
func (s *Session) dispatchLocked(cmd ScriptedCommand) {
	var err error
	switch cmd.Command {
	case GrantPrivilege:
		err = s.cmdGrantPrivilege(cmd.Params, true)
	case RemovePrivilege:
		err = s.cmdGrantPrivilege(cmd.Params, false)
	case OpenMarket:
		s.matching.OpenMarket()
	case CloseMarket:
		s.matching.CloseMarket()
	case SetLiquidityTrader:
		err = s.cmdSetLiquidityTrader(cmd.Params)
	case CreateAuction:
		err = s.cmdCreateAuction(cmd.Params)
	case StartAuction:
		err = s.cmdStartAuction()
	case SetHoldingValue:
		err = s.cmdSetHoldingValue(cmd.Params)
	default:
		err = fmt.Errorf("unknown scripted command %v", cmd.Command)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("command", cmd.Command.String()).Msg("scripted command failed")
		return
	}
	s.writeAudit("command."+cmd.Command.String(), cmd.Params)
}

func (s *Session) cmdGrantPrivilege(params map[string]string, grant bool) error {
	code, ok := privilege.LookupByName(params["code"])
	if !ok {
		return fmt.Errorf("unknown privilege code %q", params["code"])
	}
	group := params["group"]
	users := resolveGroup(group, s.Roster, s.grants)
	if len(users) == 0 {
		s.log.Warn().Str("group", group).Msg("group resolved to no users")
		return nil
	}
	for _, u := range users {
		if grant {
			if !s.grants.Grant(u, code) {
				s.log.Warn().Str("userID", u).Str("code", params["code"]).Msg("privilege grant refused (scarcity)")
				continue
			}
		} else {
			s.grants.Revoke(u, code)
		}
		s.bus.Publish(events.PrivilegeChanged, events.PrivilegeChangedPayload{UserID: u, Code: int(code), Granted: grant})
	}
	return nil
}

func (s *Session) cmdSetLiquidityTrader(params map[string]string) error {
	securityID := params["traderId"]
	if securityID == "" {
		return fmt.Errorf("missing traderId")
	}
	p, ok := s.liquidityProviders[securityID]
	if !ok {
		p = liquidity.New(securityID, s.matching, s.log)
		s.liquidityProviders[securityID] = p
		// Seed ample inventory and cash so the provider's own quotes never
		// get rejected by the checks a real participant faces.
		s.portfolio.SeedPosition(p.UserID, securityID, 1_000_000, decimal.Zero)
		s.portfolio.OverwriteCash(p.UserID, decimal.NewFromInt(1_000_000_000))
		s.startLiquidityLoop(securityID)
	}
	p.Configure(params["setting"], params["value"])
	return nil
}

// startLiquidityLoop drives one provider's requote cadence under the
// session's tomb, matching the teacher's ticker-driven worker pattern
// (internal/worker.go). A coarse 1s tick is cheap and lets each provider
// carry its own configurable refresh interval without recreating tickers
// on every "Set Liquidity Trader" reconfiguration.
func (s *Session) startLiquidityLoop(securityID string) {
	s.t.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.t.Dying():
				return nil
			case now := <-ticker.C:
				s.mu.Lock()
				s.tickLiquidity(securityID, now)
				s.mu.Unlock()
			}
		}
	})
}

func (s *Session) tickLiquidity(securityID string, now time.Time) {
	if s.state != InProgress {
		return
	}
	p, ok := s.liquidityProviders[securityID]
	if !ok || !p.Enabled() || !p.DueForRequote(now) {
		return
	}
	b, ok := s.matching.Book(securityID)
	if !ok {
		return
	}
	p.Requote(b.Last.Price)
}

func (s *Session) cmdCreateAuction(params map[string]string) error {
	code, ok := privilege.LookupByName(params["privilegeCode"])
	if !ok {
		return fmt.Errorf("unknown privilege code %q", params["privilegeCode"])
	}
	available, err := strconv.Atoi(params["available"])
	if err != nil {
		return fmt.Errorf("invalid available: %w", err)
	}
	initialPrice, err := decimal.NewFromString(params["initialPrice"])
	if err != nil {
		return fmt.Errorf("invalid initialPrice: %w", err)
	}
	increment, err := decimal.NewFromString(params["increment"])
	if err != nil {
		return fmt.Errorf("invalid increment: %w", err)
	}
	intervalSecs, err := strconv.Atoi(params["intervalSeconds"])
	if err != nil {
		return fmt.Errorf("invalid intervalSeconds: %w", err)
	}
	s.pendingAuction = auction.New(uuid.NewString(), code, available, initialPrice, increment, time.Duration(intervalSecs)*time.Second)
	return nil
}

func (s *Session) cmdStartAuction() error {
	if s.pendingAuction == nil {
		return fmt.Errorf("no pending auction to start")
	}
	a := s.pendingAuction
	s.pendingAuction = nil
	s.activeAuction = a
	a.Start(time.Now())
	s.bus.Publish(events.AuctionStarted, events.AuctionStartedPayload{
		AuctionID:     a.ID,
		PrivilegeCode: int(a.PrivilegeCode),
		Available:     a.Available,
		CurrentPrice:  a.Price.String(),
	})
	s.startAuctionLoop(a)
	return nil
}

func (s *Session) startAuctionLoop(a *auction.Auction) {
	s.t.Go(func() error {
		ticker := time.NewTicker(a.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.t.Dying():
				return nil
			case now := <-ticker.C:
				s.mu.Lock()
				closed := s.tickAuctionLocked(a, now)
				s.mu.Unlock()
				if closed {
					return nil
				}
			}
		}
	})
}

func (s *Session) tickAuctionLocked(a *auction.Auction, now time.Time) bool {
	if s.state != InProgress || s.activeAuction != a {
		return true
	}
	closed, winners := a.Tick(now)
	if !closed {
		return false
	}
	names := make([]string, 0, len(winners))
	for _, w := range winners {
		s.grants.Grant(w.UserID, a.PrivilegeCode)
		snap := s.portfolio.Snapshot(w.UserID)
		s.portfolio.OverwriteCash(w.UserID, snap.Cash.Sub(w.Price))
		s.bus.Publish(events.PrivilegeChanged, events.PrivilegeChangedPayload{UserID: w.UserID, Code: int(a.PrivilegeCode), Granted: true})
		names = append(names, w.UserID)
	}
	s.bus.Publish(events.AuctionClosed, events.AuctionClosedPayload{AuctionID: a.ID, Winners: names, Price: a.Price.String()})
	if s.activeAuction == a {
		s.activeAuction = nil
	}
	return true
}

func (s *Session) cmdSetHoldingValue(params map[string]string) error {
	amount, err := decimal.NewFromString(params["amount"])
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	users := resolveGroup(params["group"], s.Roster, s.grants)
	for _, u := range users {
		s.portfolio.OverwriteCash(u, amount)
	}
	return nil
}

// PlaceAuctionBid lets a participant accept the auction's current clock
// price. Requires the AuctionParticipant privilege (spec §4.6).
func (s *Session) PlaceAuctionBid(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.grants.Has(userID, privilege.AuctionParticipant) {
		return fmt.Errorf("user %s lacks auction-participant privilege", userID)
	}
	if s.activeAuction == nil {
		return fmt.Errorf("no active auction")
	}
	if !s.activeAuction.PlaceBid(userID, time.Now()) {
		return fmt.Errorf("auction is not accepting bids")
	}
	s.bus.Publish(events.AuctionBid, events.AuctionBidPayload{
		AuctionID: s.activeAuction.ID,
		UserID:    userID,
		Price:     s.activeAuction.Price.String(),
	})
	return nil
}
