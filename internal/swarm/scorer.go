// Package swarm implements the Analyst Swarm: three stateless per-symbol
// scorers (technical, fundamental, sentiment) and the CIO consensus that
// averages them into a single Trade Signal recommendation.
package swarm

// Verdict is a scorer's directional call.
type Verdict string

const (
	Bullish Verdict = "BULLISH"
	Bearish Verdict = "BEARISH"
	Neutral Verdict = "NEUTRAL"
)

// Score maps a Verdict to its numeric weight in the CIO consensus average.
func (v Verdict) Score() float64 {
	switch v {
	case Bullish:
		return 1.0
	case Bearish:
		return 0.0
	default:
		return 0.5
	}
}

func toInterfaceSlice(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
