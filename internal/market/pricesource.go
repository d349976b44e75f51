package market

import (
	"context"
	"fmt"
	"time"
)

// dailyHistoryLookback is the default window DailyCloses/Closes fetches
// when the caller doesn't need a specific lookback — comfortably above
// the swarm's technical scorer's 35-bar floor.
const dailyHistoryLookback = 90

// fairValueWindow is the trailing window Source-backed FairValue averages
// over. Absent a real fundamentals model, a trailing mean is the same
// kind of baseline `internal/swarm.Fundamental`'s doc comment describes
// callers supplying (a DCF or peer-multiple estimate) — this is the
// simplest defensible stand-in when no such model is wired in.
const fairValueWindow = 30

// HistorySource wraps a *SyncService's TimescaleDB-backed candlestick
// history to satisfy both internal/regime's PriceSource and
// internal/swarm's PriceHistory contracts, so the Observer and the swarm
// Analyzer adapter can share one data path instead of each fetching
// history independently.
type HistorySource struct {
	sync *SyncService
}

// NewHistorySource builds a HistorySource over sync.
func NewHistorySource(sync *SyncService) *HistorySource {
	return &HistorySource{sync: sync}
}

// DailyCloses satisfies internal/regime.PriceSource.
func (h *HistorySource) DailyCloses(ctx context.Context, symbol string, lookback int) ([]float64, error) {
	candles, err := h.OHLCV(ctx, symbol, lookback)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes, nil
}

// OHLCV satisfies internal/regime.PriceSource. catalog.Bar is a type alias
// for Candlestick, so the slice returned here is directly assignable.
func (h *HistorySource) OHLCV(ctx context.Context, symbol string, lookback int) ([]Candlestick, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -lookback)
	return h.sync.GetCandlesticks(ctx, symbol, start, end)
}

// Closes satisfies internal/swarm.PriceHistory with a fixed default
// lookback.
func (h *HistorySource) Closes(ctx context.Context, symbol string) ([]float64, error) {
	return h.DailyCloses(ctx, symbol, dailyHistoryLookback)
}

// CurrentPrice satisfies internal/swarm.PriceHistory.
func (h *HistorySource) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	latest, err := h.sync.GetLatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return latest.Close, nil
}

// FairValue satisfies internal/swarm.PriceHistory with a trailing
// fairValueWindow-bar mean close as the fair-value baseline.
func (h *HistorySource) FairValue(ctx context.Context, symbol string) (float64, error) {
	closes, err := h.DailyCloses(ctx, symbol, fairValueWindow)
	if err != nil {
		return 0, err
	}
	if len(closes) == 0 {
		return 0, fmt.Errorf("market: no closes available to derive fair value for %s", symbol)
	}
	var sum float64
	for _, c := range closes {
		sum += c
	}
	return sum / float64(len(closes)), nil
}
