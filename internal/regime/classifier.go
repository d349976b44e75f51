// Package regime implements the Regime Classifier and the Playbook
// Observer loop that composes it with the Signal Catalog, Risk Engine, and
// Kill Switch.
package regime

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// Regime is the macro market state, mirrored from internal/gate so callers
// that only need the classifier don't have to import the gate package.
type Regime string

const (
	Green  Regime = "GREEN"
	Yellow Regime = "YELLOW"
	Red    Regime = "RED"
)

const (
	emaFast           = 21
	smaSlow           = 50
	emaRisingLookback = 3
	minBars           = 50
)

const (
	confidenceGreen            = 0.85
	confidenceYellow           = 0.70
	confidenceRed              = 0.80
	confidenceInsufficientData = 0.1
	creditDivergencePenalty    = 0.15
	confidenceFloor            = 0.45
)

// State is the classifier's output.
type State struct {
	Regime          Regime
	Price           float64
	EMA21           float64
	SMA50           float64
	CreditDivergence bool
	Confidence      float64
	Reason          string
}

// Classify maps SPY closing prices (oldest first) and optional JNK/TLT
// 5-day return series to a regime. Fewer than 50 bars of spyCloses always
// yields RED with confidence 0.1, per the insufficient-data rule.
func Classify(spyCloses []float64, jnk5dReturn, tlt5dReturn float64, haveCreditSeries bool) State {
	if len(spyCloses) < minBars {
		return State{
			Regime:     Red,
			Confidence: confidenceInsufficientData,
			Reason:     "insufficient data",
		}
	}

	ema21 := computeEMA(spyCloses, emaFast)
	sma50 := computeSMA(spyCloses, smaSlow)
	price := spyCloses[len(spyCloses)-1]

	rising := emaRising(spyCloses, emaFast)

	var st State
	st.Price = price
	st.EMA21 = ema21[len(ema21)-1]
	st.SMA50 = sma50[len(sma50)-1]

	switch {
	case price > st.EMA21 && rising:
		st.Regime = Green
		st.Confidence = confidenceGreen
		st.Reason = "price above rising EMA21"
	case price > st.SMA50:
		st.Regime = Yellow
		st.Confidence = confidenceYellow
		st.Reason = "price above SMA50 but not confirmed GREEN"
	default:
		st.Regime = Red
		st.Confidence = confidenceRed
		st.Reason = "price below SMA50"
	}

	if price > st.EMA21 && haveCreditSeries && jnk5dReturn < tlt5dReturn {
		st.CreditDivergence = true
		st.Confidence -= creditDivergencePenalty
		if st.Confidence < confidenceFloor {
			st.Confidence = confidenceFloor
		}
		st.Reason = fmt.Sprintf("%s; credit divergence (JNK underperforming TLT)", st.Reason)
	}

	return st
}

func computeEMA(closes []float64, period int) []float64 {
	ch := make(chan float64, len(closes))
	for _, v := range closes {
		ch <- v
	}
	close(ch)

	ind := trend.NewEmaWithPeriod[float64](period)
	out := ind.Compute(ch)

	var vals []float64
	for v := range out {
		vals = append(vals, v)
	}
	return vals
}

func computeSMA(closes []float64, period int) []float64 {
	ch := make(chan float64, len(closes))
	for _, v := range closes {
		ch <- v
	}
	close(ch)

	ind := trend.NewSmaWithPeriod[float64](period)
	out := ind.Compute(ch)

	var vals []float64
	for v := range out {
		vals = append(vals, v)
	}
	return vals
}

// emaRising reports whether the current EMA value exceeds the EMA value
// emaRisingLookback bars ago.
func emaRising(closes []float64, period int) bool {
	ema := computeEMA(closes, period)
	if len(ema) <= emaRisingLookback {
		return false
	}
	current := ema[len(ema)-1]
	past := ema[len(ema)-1-emaRisingLookback]
	return current > past
}
