package swarm

import (
	"fmt"

	"github.com/meridianquant/orbitron/internal/indicators"
)

// Technical weights mirror the rule-based combiner's defaults: RSI and
// MACD carry the most signal, Bollinger Bands confirm.
const (
	rsiWeight       = 0.40
	macdWeight      = 0.35
	bollingerWeight = 0.25
)

const minTechnicalHistory = 35 // slowPeriod(26) + signalPeriod(9), MACD's floor

// Technical scores a symbol from its trailing closing prices using RSI,
// MACD, and Bollinger Band position, weighted-averaged into a single
// verdict. closes must be oldest-first.
func Technical(svc *indicators.Service, closes []float64) (Verdict, error) {
	if len(closes) < minTechnicalHistory {
		return Neutral, fmt.Errorf("swarm: need at least %d closes for a technical score, got %d", minTechnicalHistory, len(closes))
	}

	args := map[string]interface{}{"prices": toInterfaceSlice(closes)}

	buyScore, totalWeight := 0.0, 0.0

	if raw, err := svc.CalculateRSI(args); err == nil {
		if rsi, ok := raw.(*indicators.RSIResult); ok {
			buyScore += rsiWeight * directionalScore(rsiSignalDirection(rsi.Value))
			totalWeight += rsiWeight
		}
	}

	if raw, err := svc.CalculateMACD(args); err == nil {
		if macd, ok := raw.(*indicators.MACDResult); ok {
			buyScore += macdWeight * directionalScore(macd.Crossover)
			totalWeight += macdWeight
		}
	}

	if raw, err := svc.CalculateBollingerBands(args); err == nil {
		if bb, ok := raw.(*indicators.BollingerBandsResult); ok {
			buyScore += bollingerWeight * directionalScore(bb.Signal)
			totalWeight += bollingerWeight
		}
	}

	if totalWeight == 0 {
		return Neutral, fmt.Errorf("swarm: no technical indicator produced a usable result")
	}

	avg := buyScore / totalWeight
	switch {
	case avg > 0.66:
		return Bullish, nil
	case avg < 0.33:
		return Bearish, nil
	default:
		return Neutral, nil
	}
}

// rsiSignalDirection reproduces the teacher's oversold/overbought mapping
// for the subset relevant here: below 30 is oversold (bullish mean
// reversion), above 70 is overbought (bearish).
func rsiSignalDirection(value float64) string {
	switch {
	case value <= 30:
		return "buy"
	case value >= 70:
		return "sell"
	default:
		return "neutral"
	}
}

// directionalScore maps every directional label this package's indicator
// wrappers emit (RSI's buy/sell/neutral, MACD's bullish/bearish/none,
// Bollinger's buy/sell/neutral) onto a common [0,1] scale.
func directionalScore(label string) float64 {
	switch label {
	case "buy", "bullish":
		return 1.0
	case "sell", "bearish":
		return 0.0
	default:
		return 0.5
	}
}
