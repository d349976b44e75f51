package autopilot

import (
	"context"
	"testing"
	"time"

	"github.com/meridianquant/orbitron/internal/tradesignal"
)

func TestManageActiveExitsSkipsPositionUnderMinimumHold(t *testing.T) {
	routes := newTestRouter(t, "AAPL", 110.0, 10000.0)
	ap := New(baseSettings(), nil, nil, routes, nil, nil, nil)
	ap.st.recordTrade(TradeRecord{Ticker: "AAPL", Side: tradesignal.ActionBuy, EntryPrice: 100.0, Quantity: 1, EnteredAt: time.Now()})

	if err := ap.manageActiveExits(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ap.st.alreadyHeld("AAPL") {
		t.Fatal("expected position under minimum hold to remain open")
	}
}

func TestManageActiveExitsClosesOnTakeProfit(t *testing.T) {
	routes := newTestRouter(t, "AAPL", 110.0, 10000.0) // +10% move clears the 5% take-profit
	ap := New(baseSettings(), nil, nil, routes, nil, nil, nil)
	ap.st.recordTrade(TradeRecord{
		Ticker:     "AAPL",
		Side:       tradesignal.ActionBuy,
		EntryPrice: 100.0,
		Quantity:   1,
		EnteredAt:  time.Now().Add(-10 * time.Minute),
	})

	if err := ap.manageActiveExits(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ap.st.alreadyHeld("AAPL") {
		t.Fatal("expected position to be closed on take-profit")
	}
	if !ap.st.isBlacklisted("AAPL", time.Now()) {
		t.Fatal("expected ticker to be blacklisted after close")
	}
}

func TestManageActiveExitsClosesOnStopLoss(t *testing.T) {
	routes := newTestRouter(t, "AAPL", 97.0, 10000.0) // -3% move clears the 2% stop-loss
	ap := New(baseSettings(), nil, nil, routes, nil, nil, nil)
	ap.st.recordTrade(TradeRecord{
		Ticker:     "AAPL",
		Side:       tradesignal.ActionBuy,
		EntryPrice: 100.0,
		Quantity:   1,
		EnteredAt:  time.Now().Add(-10 * time.Minute),
	})

	if err := ap.manageActiveExits(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ap.st.alreadyHeld("AAPL") {
		t.Fatal("expected position to be closed on stop-loss")
	}
}

func TestManageActiveExitsHoldsWithinBand(t *testing.T) {
	routes := newTestRouter(t, "AAPL", 101.0, 10000.0) // +1%, inside both thresholds
	ap := New(baseSettings(), nil, nil, routes, nil, nil, nil)
	ap.st.recordTrade(TradeRecord{
		Ticker:     "AAPL",
		Side:       tradesignal.ActionBuy,
		EntryPrice: 100.0,
		Quantity:   1,
		EnteredAt:  time.Now().Add(-10 * time.Minute),
	})

	if err := ap.manageActiveExits(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ap.st.alreadyHeld("AAPL") {
		t.Fatal("expected position within the take-profit/stop-loss band to remain open")
	}
}

func TestExitReasonPredictionMarketUsesAbsoluteBidLevels(t *testing.T) {
	ap := &Autopilot{}
	rec := TradeRecord{AssetClass: tradesignal.AssetPredictionMarket, EntryPrice: 0.5}

	if got := ap.exitReason(rec, 0.95); got != reasonTakeProfit {
		t.Fatalf("expected take profit at bid 0.95, got %q", got)
	}
	if got := ap.exitReason(rec, 0.05); got != reasonStopLoss {
		t.Fatalf("expected stop loss at bid 0.05, got %q", got)
	}
	if got := ap.exitReason(rec, 0.5); got != "" {
		t.Fatalf("expected no exit at bid 0.5, got %q", got)
	}
}
