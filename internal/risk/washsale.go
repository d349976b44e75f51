package risk

import (
	"context"
	"time"

	"github.com/meridianquant/orbitron/internal/ledger"
)

const washSaleWindow = 30 * 24 * time.Hour

// LedgerHistory is the subset of ledger.Store's read surface the wash-sale
// guard needs.
type LedgerHistory interface {
	TradeHistory(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// WashSaleGuard blocks new buys on a ticker that was sold at a loss within
// the trailing 30 days.
type WashSaleGuard struct {
	history LedgerHistory
	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewWashSaleGuard constructs a guard reading trade history from history.
func NewWashSaleGuard(history LedgerHistory) *WashSaleGuard {
	return &WashSaleGuard{history: history, now: time.Now}
}

// lossReasonTag marks a ledger entry's Reason as a stop-loss-triggered exit.
const lossReasonTag = "stop_loss"

// Blocked reports whether ticker was sold for a stop-loss reason within the
// trailing 30 days, scanning the most recent entries returned by the
// underlying ledger history (bounded by limit).
func (g *WashSaleGuard) Blocked(ctx context.Context, ticker string, limit int) (bool, error) {
	entries, err := g.history.TradeHistory(ctx, limit)
	if err != nil {
		return false, err
	}

	cutoff := g.now().Add(-washSaleWindow)
	for _, e := range entries {
		if e.Ticker != ticker || e.Action != ledger.ActionSell {
			continue
		}
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if e.Reason == lossReasonTag {
			return true, nil
		}
	}
	return false, nil
}
