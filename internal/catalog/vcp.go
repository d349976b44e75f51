package catalog

import (
	"math"

	"github.com/markcheno/go-talib"
)

const (
	vcpLookback           = 60
	vcpMinWaves           = 3
	vcpWaveTighteningMax  = 0.70
	vcpPivotProximityPct  = 0.03
	vcpConf               = 0.78
	vcpEntryMultiplier    = 1.001
	vcpBBPeriod           = 20
	vcpBBStdDev           = 2.0
	vcpSqueezeWidthMaxPct = 0.10
)

// wave is one pullback leg: a local high followed by a local low.
type wave struct {
	high float64
	low  float64
}

// vcp fires on a volatility-contraction pattern: at least three
// progressively tighter pullback waves within the last 60 bars, with the
// current price back near the tightest pivot high. The squeeze is cross-
// checked against a Bollinger-band width compression, since a true VCP
// narrows realized volatility as the waves tighten.
func vcp(symbol string, bars []Bar) *Signal {
	if len(bars) < vcpLookback {
		return nil
	}

	window := bars[len(bars)-vcpLookback:]
	waves := findWaves(window)
	if len(waves) < vcpMinWaves {
		return nil
	}

	for i := 1; i < len(waves); i++ {
		prevDrawdown := (waves[i-1].high - waves[i-1].low) / waves[i-1].high
		curDrawdown := (waves[i].high - waves[i].low) / waves[i].high
		if prevDrawdown <= 0 || curDrawdown > vcpWaveTighteningMax*prevDrawdown {
			return nil
		}
	}

	tightest := waves[len(waves)-1]
	today := bars[len(bars)-1]

	proximity := (tightest.high - today.Close) / tightest.high
	if proximity < 0 {
		proximity = -proximity
	}
	if proximity > vcpPivotProximityPct {
		return nil
	}

	closes := make([]float64, len(window))
	for i, b := range window {
		closes[i] = b.Close
	}
	if !bollingerSqueeze(closes) {
		return nil
	}

	return &Signal{
		Pattern:    "VCP",
		Symbol:     symbol,
		Confidence: vcpConf,
		EntryPrice: tightest.high * vcpEntryMultiplier,
		StopPrice:  tightest.low,
		Timestamp:  today.Timestamp,
		Metadata: map[string]interface{}{
			"waves": len(waves),
		},
	}
}

// findWaves is a simple local-extrema walk: each swing-high followed by a
// swing-low before the next higher high becomes one wave.
func findWaves(bars []Bar) []wave {
	var waves []wave
	if len(bars) < 3 {
		return waves
	}

	curHigh := bars[0].High
	curLow := bars[0].Low
	rising := true

	for _, b := range bars[1:] {
		if rising {
			if b.High >= curHigh {
				curHigh = b.High
				curLow = b.Low
				continue
			}
			rising = false
			curLow = b.Low
			continue
		}
		if b.Low <= curLow {
			curLow = b.Low
			continue
		}
		waves = append(waves, wave{high: curHigh, low: curLow})
		curHigh = b.High
		curLow = b.Low
		rising = true
	}

	return waves
}

// bollingerSqueeze reports whether the most recent Bollinger band width
// (relative to the middle band) is tight, confirming volatility
// contraction alongside the wave-height tightening check.
func bollingerSqueeze(closes []float64) bool {
	if len(closes) < vcpBBPeriod {
		return false
	}
	upper, middle, lower := talib.BBands(closes, vcpBBPeriod, vcpBBStdDev, vcpBBStdDev, 0)
	if len(upper) == 0 {
		return false
	}
	last := len(upper) - 1
	if middle[last] == 0 || math.IsNaN(upper[last]) {
		return false
	}
	width := (upper[last] - lower[last]) / middle[last]
	return width <= vcpSqueezeWidthMaxPct
}
