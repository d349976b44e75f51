package catalog

const (
	highTightFlagLegBars       = 40
	highTightFlagLegMinReturn  = 1.0 // 100%
	highTightFlagMinSpan       = 3
	highTightFlagMaxSpan       = 5
	highTightFlagRetraceMax    = 0.20
	highTightFlagVolumeMult    = 3.0
	highTightFlagVolumeLookbk  = 20
	highTightFlagConf          = 0.82
)

// highTightFlag fires on a explosive prior advance (>=100% over 40 bars)
// followed by a brief, shallow flag, broken to the upside on a volume
// surge.
func highTightFlag(symbol string, bars []Bar) *Signal {
	n := len(bars)
	if n < highTightFlagLegBars+highTightFlagMaxSpan+1 {
		return nil
	}

	for span := highTightFlagMinSpan; span <= highTightFlagMaxSpan; span++ {
		legEnd := n - 1 - span
		legStartIdx := legEnd - highTightFlagLegBars
		if legStartIdx < 0 {
			continue
		}

		legStart := bars[legStartIdx]
		legPeak := bars[legEnd]
		legReturn := (legPeak.High - legStart.Low) / legStart.Low
		if legReturn < highTightFlagLegMinReturn {
			continue
		}

		flag := bars[legEnd+1 : n-1]
		if len(flag) != span {
			continue
		}

		flagLow := flag[0].Low
		for _, b := range flag[1:] {
			if b.Low < flagLow {
				flagLow = b.Low
			}
		}
		retrace := (legPeak.High - flagLow) / legPeak.High
		if retrace > highTightFlagRetraceMax {
			continue
		}

		today := bars[n-1]
		if today.Close <= legPeak.High {
			continue
		}

		avgVol := avgVolume(bars[:n-1], highTightFlagVolumeLookbk)
		if avgVol <= 0 || today.Volume < highTightFlagVolumeMult*avgVol {
			continue
		}

		return &Signal{
			Pattern:    "HighTightFlag",
			Symbol:     symbol,
			Confidence: highTightFlagConf,
			EntryPrice: legPeak.High,
			StopPrice:  flagLow,
			Timestamp:  today.Timestamp,
			Metadata: map[string]interface{}{
				"leg_return": legReturn,
				"flag_span":  span,
			},
		}
	}

	return nil
}
