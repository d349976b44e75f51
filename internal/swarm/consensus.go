package swarm

import (
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// consensusBuyThreshold and consensusSellThreshold gate the averaged
// scorer verdict into an actionable call; everything between is HOLD.
const (
	consensusBuyThreshold  = 0.7
	consensusSellThreshold = 0.3

	// maxPositionSizePct is the CIO consensus's own hard position-size
	// ceiling, expressed as a percentage of a unit bankroll — distinct
	// from and tighter than the Trade Signal contract's 10% cap.
	maxPositionSizePct = 4.99
)

// Disposition is EXECUTE when the consensus clears a threshold in either
// direction, PASS when it lands in the HOLD band.
type Disposition string

const (
	Execute Disposition = "EXECUTE"
	Pass    Disposition = "PASS"
)

// Consensus is the CIO's combined call across the three scorers.
type Consensus struct {
	Action          tradesignal.Action
	Confidence      float64
	Disposition     Disposition
	PositionSizePct float64 // fraction of bankroll, e.g. 0.0499 for 4.99%
}

// CIOConsensus averages the technical, fundamental, and sentiment verdicts
// and maps the result onto an action, confidence, and position size.
func CIOConsensus(technical, fundamental, sentiment Verdict) Consensus {
	avg := (technical.Score() + fundamental.Score() + sentiment.Score()) / 3.0

	switch {
	case avg > consensusBuyThreshold:
		return newConsensus(tradesignal.ActionBuy, avg, Execute)
	case avg < consensusSellThreshold:
		return newConsensus(tradesignal.ActionSell, 1-avg, Execute)
	default:
		return Consensus{Action: tradesignal.ActionHold, Confidence: avg, Disposition: Pass}
	}
}

func newConsensus(action tradesignal.Action, confidence float64, disposition Disposition) Consensus {
	kellyFactor := 2*confidence - 1
	if kellyFactor < 0 {
		kellyFactor = 0
	}

	sizePct := maxPositionSizePct * kellyFactor
	if sizePct > maxPositionSizePct {
		sizePct = maxPositionSizePct
	}

	return Consensus{
		Action:          action,
		Confidence:      confidence,
		Disposition:     disposition,
		PositionSizePct: sizePct / 100.0,
	}
}
