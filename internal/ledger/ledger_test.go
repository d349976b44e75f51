package ledger

import (
	"testing"
	"time"
)

func at(hoursAgo int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(hoursAgo) * time.Hour)
}

func TestReplayFIFOReconstruction(t *testing.T) {
	entries := []Entry{
		{Timestamp: at(0), Action: ActionBuy, Ticker: "AAPL", Price: 5, Quantity: 10},
		{Timestamp: at(1), Action: ActionBuy, Ticker: "AAPL", Price: 6, Quantity: 20},
		{Timestamp: at(2), Action: ActionSell, Ticker: "AAPL", Price: 7, Quantity: 15},
	}

	positions, pnl, err := Replay(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, ok := positions["AAPL"]
	if !ok {
		t.Fatalf("expected an open AAPL position")
	}
	if pos.SharesHeld != 15 {
		t.Fatalf("expected 15 shares held, got %v", pos.SharesHeld)
	}
	if pos.AvgPrice != 6 {
		t.Fatalf("expected avg price 6, got %v", pos.AvgPrice)
	}
	if pnl["AAPL"] != 25 {
		t.Fatalf("expected realized PnL 25, got %v", pnl["AAPL"])
	}
}

func TestReplaySellExceedingUnmatchedQuantityErrors(t *testing.T) {
	entries := []Entry{
		{Timestamp: at(0), Action: ActionBuy, Ticker: "MSFT", Price: 100, Quantity: 5},
		{Timestamp: at(1), Action: ActionSell, Ticker: "MSFT", Price: 110, Quantity: 10},
	}

	if _, _, err := Replay(entries); err == nil {
		t.Fatalf("expected an error for oversold quantity")
	}
}

func TestReplayFullyClosedPositionIsAbsent(t *testing.T) {
	entries := []Entry{
		{Timestamp: at(0), Action: ActionBuy, Ticker: "TSLA", Price: 100, Quantity: 5},
		{Timestamp: at(1), Action: ActionSell, Ticker: "TSLA", Price: 120, Quantity: 5},
	}

	positions, _, err := Replay(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := positions["TSLA"]; ok {
		t.Fatalf("expected no open position once fully sold")
	}
}

func TestReplayIsOrderIndependent(t *testing.T) {
	forward := []Entry{
		{Timestamp: at(0), Action: ActionBuy, Ticker: "GME", Price: 10, Quantity: 10},
		{Timestamp: at(1), Action: ActionSell, Ticker: "GME", Price: 15, Quantity: 4},
	}
	reversed := []Entry{forward[1], forward[0]}

	posA, pnlA, errA := Replay(forward)
	posB, pnlB, errB := Replay(reversed)

	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v %v", errA, errB)
	}
	if posA["GME"].SharesHeld != posB["GME"].SharesHeld {
		t.Fatalf("replay should be invariant to input order once sorted by timestamp")
	}
	if pnlA["GME"] != pnlB["GME"] {
		t.Fatalf("realized pnl should be invariant to input order once sorted by timestamp")
	}
}

func TestReplayNegativeQuantityErrors(t *testing.T) {
	entries := []Entry{
		{Timestamp: at(0), Action: ActionBuy, Ticker: "BAD", Price: 1, Quantity: -1},
	}
	if _, _, err := Replay(entries); err == nil {
		t.Fatalf("expected an error for negative quantity")
	}
}

func TestHeldDustTolerance(t *testing.T) {
	p := Position{SharesHeld: 1e-9}
	if p.Held() {
		t.Fatalf("dust-level shares should not be considered held")
	}
}
