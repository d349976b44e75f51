package autopilot

import (
	"context"
	"time"

	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/exchange"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// blacklistDuration is how long a ticker is quarantined after the Exit
// Engine closes a position on it.
const blacklistDuration = 4 * time.Hour

// TradeRecord is the Autopilot's own book of a position it opened. It is
// the sole source of truth for the minimum-hold and already-held checks —
// no other component mutates it.
type TradeRecord struct {
	Module     string                 `json:"module"`
	Ticker     string                 `json:"ticker"`
	AssetClass tradesignal.AssetClass `json:"asset_class"`
	Side       tradesignal.Action     `json:"side"`
	EntryPrice float64                `json:"entry_price"`
	Quantity   float64                `json:"quantity"`
	EnteredAt  time.Time              `json:"entered_at"`
}

// state holds the executed-trades and blacklist maps described in
// spec'd §4.14/§4.15: owned exclusively by the Autopilot process, restored
// from the bus on restart, persisted back after every mutation.
type state struct {
	executedTrades map[string]TradeRecord
	blacklist      map[string]time.Time

	// seenTradeIDs is the synthetic trade-id idempotency set. It is
	// intentionally not bus-persisted: it only needs to survive within a
	// process's uptime to stop a double-dispatch inside the same day,
	// and a restart's seedPositions/alreadyHeld check is the backstop.
	seenTradeIDs map[string]bool
}

func newState() *state {
	return &state{
		executedTrades: make(map[string]TradeRecord),
		blacklist:      make(map[string]time.Time),
		seenTradeIDs:   make(map[string]bool),
	}
}

// restore loads the persisted maps from the bus. Absence of either key is
// not an error — it means a cold start with no prior state.
func (s *state) restore(ctx context.Context, b *bus.Bus) {
	var trades map[string]TradeRecord
	if bus.ReadValue(ctx, b, bus.KeyExecutedTrades, &trades) && trades != nil {
		s.executedTrades = trades
	}
	var blacklist map[string]time.Time
	if bus.ReadValue(ctx, b, bus.KeyBlacklist, &blacklist) && blacklist != nil {
		s.blacklist = blacklist
	}
}

// persist writes both maps back to the bus so a restart recovers them.
func (s *state) persist(ctx context.Context, b *bus.Bus) {
	_ = bus.Publish(ctx, b, bus.KeyExecutedTrades, s.executedTrades, "autopilot", 1.0)
	_ = bus.Publish(ctx, b, bus.KeyBlacklist, s.blacklist, "autopilot", 1.0)
}

// seedPositions merges the venue's current positions into executedTrades
// on startup, so a restart does not treat already-open positions as new
// opportunities to duplicate.
func (s *state) seedPositions(positions []exchange.BrokerPosition) {
	now := time.Now()
	for _, p := range positions {
		if _, ok := s.executedTrades[p.Symbol]; ok {
			continue
		}
		if p.Quantity == 0 {
			continue
		}
		s.executedTrades[p.Symbol] = TradeRecord{
			Module:     "seeded",
			Ticker:     p.Symbol,
			EntryPrice: p.AverageBuyPrice,
			Quantity:   p.Quantity,
			EnteredAt:  now,
		}
	}
}

// alreadyHeld reports whether ticker already has an open position in the
// Autopilot's own book.
func (s *state) alreadyHeld(ticker string) bool {
	_, ok := s.executedTrades[ticker]
	return ok
}

// isBlacklisted reports whether ticker is still within its post-close
// cooldown window.
func (s *state) isBlacklisted(ticker string, now time.Time) bool {
	expiry, ok := s.blacklist[ticker]
	if !ok {
		return false
	}
	return now.Before(expiry)
}

// blacklistTicker quarantines ticker for blacklistDuration starting now.
func (s *state) blacklistTicker(ticker string, now time.Time) {
	s.blacklist[ticker] = now.Add(blacklistDuration)
}

// recordTrade adds a newly opened position to the book.
func (s *state) recordTrade(rec TradeRecord) {
	s.executedTrades[rec.Ticker] = rec
}

// closeTrade removes ticker from the open-positions book, e.g. after the
// Exit Engine closes it.
func (s *state) closeTrade(ticker string) {
	delete(s.executedTrades, ticker)
}

// seenTradeID reports whether tradeID has already been dispatched.
func (s *state) seenTradeID(tradeID string) bool {
	return s.seenTradeIDs[tradeID]
}

// markTradeID records tradeID as dispatched.
func (s *state) markTradeID(tradeID string) {
	s.seenTradeIDs[tradeID] = true
}

// openPositions returns a snapshot slice of the current book, safe for the
// Exit Engine to range over while the loop may later mutate the map.
func (s *state) openPositions() []TradeRecord {
	out := make([]TradeRecord, 0, len(s.executedTrades))
	for _, rec := range s.executedTrades {
		out = append(out, rec)
	}
	return out
}
