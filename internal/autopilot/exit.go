package autopilot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianquant/orbitron/internal/alerts"
	"github.com/meridianquant/orbitron/internal/exchange"
	"github.com/meridianquant/orbitron/internal/ledger"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// minimumHold is the floor below which a position is never reviewed for
// exit, regardless of price action — it exists to stop a single cycle's
// noise from immediately round-tripping a fill.
const minimumHold = 300 * time.Second

// Equity take-profit/stop-loss thresholds, expressed as a fractional move
// from entry price. Prediction-market thresholds are absolute bid levels,
// not fractional moves, since those venues quote probability directly.
const (
	equityTakeProfitPct   = 0.05
	equityStopLossPct     = 0.02
	predictionTakeProfit  = 0.90
	predictionStopLoss    = 0.10
	reasonTakeProfit      = "Take Profit"
	reasonStopLoss        = "Stop Loss"
)

// manageActiveExits reviews every open position and closes any that clear
// a take-profit or stop-loss threshold, per §4.15. A position held less
// than minimumHold is skipped entirely, even if its price already cleared
// a threshold.
func (a *Autopilot) manageActiveExits(ctx context.Context) error {
	now := time.Now()

	for _, rec := range a.st.openPositions() {
		if now.Sub(rec.EnteredAt) < minimumHold {
			continue
		}

		broker, err := a.routes.Select(rec.Ticker, now)
		if err != nil {
			log.Warn().Err(err).Str("ticker", rec.Ticker).Msg("autopilot: exit engine could not resolve broker")
			continue
		}

		bid, err := broker.GetLatestPrice(ctx, rec.Ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", rec.Ticker).Msg("autopilot: exit engine failed to fetch live price")
			continue
		}

		reason := a.exitReason(rec, bid)
		if reason == "" {
			continue
		}

		if err := a.closePosition(ctx, broker, rec, bid, reason); err != nil {
			log.Error().Err(err).Str("ticker", rec.Ticker).Msg("autopilot: exit engine failed to close position")
			continue
		}

		a.st.closeTrade(rec.Ticker)
		a.st.blacklistTicker(rec.Ticker, now)
	}

	return nil
}

// exitReason returns "Take Profit", "Stop Loss", or "" (no exit) for rec
// at the current bid.
func (a *Autopilot) exitReason(rec TradeRecord, bid float64) string {
	if rec.AssetClass == tradesignal.AssetPredictionMarket {
		switch {
		case bid >= predictionTakeProfit:
			return reasonTakeProfit
		case bid <= predictionStopLoss:
			return reasonStopLoss
		default:
			return ""
		}
	}

	if rec.EntryPrice <= 0 {
		return ""
	}
	move := (bid - rec.EntryPrice) / rec.EntryPrice
	if rec.Side == tradesignal.ActionSell || rec.Side == tradesignal.ActionShort {
		move = -move
	}

	switch {
	case move >= equityTakeProfitPct:
		return reasonTakeProfit
	case move <= -equityStopLossPct:
		return reasonStopLoss
	default:
		return ""
	}
}

func (a *Autopilot) closePosition(ctx context.Context, broker exchange.Broker, rec TradeRecord, bid float64, reason string) error {
	closeSide := exchange.OrderSideSell
	if rec.Side == tradesignal.ActionSell || rec.Side == tradesignal.ActionShort {
		closeSide = exchange.OrderSideBuy
	}

	// SubmitOrder takes a notional amount, so the held quantity is priced at the current bid.
	order, err := exchange.SubmitOrderRetrying(ctx, broker, rec.Ticker, rec.Quantity*bid, closeSide, exchange.OrderTypeMarket, 0)
	if err != nil {
		return fmt.Errorf("exit engine: close order failed: %w", err)
	}

	if a.alerts != nil {
		if err := a.alerts.Send(ctx, alerts.Alert{
			Title:    "Position closed",
			Message:  fmt.Sprintf("%s %s at %.4f (%s)", rec.Ticker, reason, order.AvgFillPrice, closeSide),
			Severity: alerts.SeverityInfo,
		}); err != nil {
			log.Warn().Err(err).Str("ticker", rec.Ticker).Msg("autopilot: failed to send exit alert")
		}
	}

	if a.ledger == nil {
		return nil
	}

	entry := ledger.Entry{
		Timestamp: time.Now(),
		Action:    ledgerActionFor(closeSide),
		Ticker:    rec.Ticker,
		Price:     order.AvgFillPrice,
		Quantity:  order.FilledQty,
		Reason:    reason,
		Broker:    broker.Name(),
	}
	return a.ledger.Append(ctx, entry)
}
