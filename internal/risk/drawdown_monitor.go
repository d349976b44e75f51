package risk

import "fmt"

const defaultDrawdownHaltThreshold = 0.15

// DrawdownMonitor tracks a peak-to-current equity series per strategy (or
// "portfolio" for the book-wide series) and reports a halt reason once the
// drawdown exceeds the configured threshold.
type DrawdownMonitor struct {
	threshold float64
	peaks     map[string]float64
}

// NewDrawdownMonitor constructs a monitor with the given halt threshold
// (fraction, e.g. 0.15 for 15%). A zero threshold uses the spec default.
func NewDrawdownMonitor(threshold float64) *DrawdownMonitor {
	if threshold <= 0 {
		threshold = defaultDrawdownHaltThreshold
	}
	return &DrawdownMonitor{threshold: threshold, peaks: make(map[string]float64)}
}

// Update records a new equity value for key and returns a non-empty halt
// reason if the resulting drawdown breaches the threshold.
func (m *DrawdownMonitor) Update(key string, equity float64) (drawdown float64, haltReason string) {
	peak, ok := m.peaks[key]
	if !ok || equity > peak {
		m.peaks[key] = equity
		return 0, ""
	}
	if peak <= 0 {
		return 0, ""
	}

	drawdown = (peak - equity) / peak
	if drawdown > m.threshold {
		haltReason = fmt.Sprintf("%s drawdown %.2f%% exceeds halt threshold %.2f%%", key, drawdown*100, m.threshold*100)
	}
	return drawdown, haltReason
}
