// Package catalog implements the Signal Catalog: a set of pure pattern
// detectors over OHLCV bars. Each detector is independent and isolates its
// own panics so one bad detector never aborts a scan.
package catalog

import (
	"time"

	"github.com/meridianquant/orbitron/internal/market"
)

// Bar is an alias for the teacher's existing OHLCV candlestick type, reused
// rather than duplicated so the harvester, regime classifier, and catalog
// all speak the same shape.
type Bar = market.Candlestick

// Signal is a single detector hit.
type Signal struct {
	Pattern    string
	Symbol     string
	Confidence float64
	EntryPrice float64
	StopPrice  float64
	Timestamp  time.Time
	Metadata   map[string]interface{}
}

// detector is the common shape every pattern function implements. bars are
// ordered oldest-first; the last element is "today".
type detector func(symbol string, bars []Bar) *Signal

var detectors = map[string]detector{
	"EpisodicPivot": episodicPivot,
	"MomentumBurst": momentumBurst,
	"ElephantBar":   elephantBar,
	"VCP":           vcp,
	"HighTightFlag": highTightFlag,
	"InsideBar212":  insideBar212,
}

// ScanSymbol runs every registered detector against bars and returns every
// match. A detector that panics is isolated via recover and skipped rather
// than aborting the scan for the other detectors.
func ScanSymbol(symbol string, bars []Bar) []Signal {
	var signals []Signal
	for name, fn := range detectors {
		if sig := runDetector(name, fn, symbol, bars); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

func runDetector(name string, fn detector, symbol string, bars []Bar) (sig *Signal) {
	defer func() {
		if r := recover(); r != nil {
			logDetectorPanic(name, symbol, r)
			sig = nil
		}
	}()
	return fn(symbol, bars)
}

func sma(bars []Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}

func avgRange(bars []Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.High - b.Low
	}
	return sum / float64(period)
}

func avgVolume(bars []Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Volume
	}
	return sum / float64(period)
}

func maxVolume(bars []Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}
	window := bars[len(bars)-period:]
	max := window[0].Volume
	for _, b := range window[1:] {
		if b.Volume > max {
			max = b.Volume
		}
	}
	return max
}
