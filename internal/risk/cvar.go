package risk

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

const cvarTailProbability = 0.01

// CVaR99 computes the 99% Conditional Value at Risk (Expected Shortfall):
// the mean of returns at or below the 1st percentile. Percentile lookup
// uses gonum's empirical quantile rather than a hand-rolled index, so the
// interpolation behavior matches the rest of the risk package's
// gonum-backed statistics.
func CVaR99(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := slices.Clone(returns)
	slices.Sort(sorted)

	threshold := stat.Quantile(cvarTailProbability, stat.Empirical, sorted, nil)

	var sum float64
	var count int
	for _, r := range sorted {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return sorted[0]
	}
	return sum / float64(count)
}

// ExceedsLimit reports whether CVaR99 of returns, scaled to nav, breaches
// limitPct of nav.
func ExceedsLimit(returns []float64, nav, limitPct float64) bool {
	if nav <= 0 {
		return false
	}
	cvar := CVaR99(returns)
	if cvar >= 0 {
		return false
	}
	lossPct := -cvar
	return lossPct > limitPct
}
