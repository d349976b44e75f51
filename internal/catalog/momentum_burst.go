package catalog

const (
	momentumBurstReturnLookback  = 20
	momentumBurstReturnMin       = 0.05
	momentumBurstConsolidation   = 3
	momentumBurstRangeMax        = 0.02
	momentumBurstConf            = 0.72
	momentumBurstEntryMultiplier = 1.001
)

// momentumBurst fires when a strong 20-bar advance tightens into a low-
// volume, low-range consolidation and then breaks out on above-average
// volume.
func momentumBurst(symbol string, bars []Bar) *Signal {
	if len(bars) < momentumBurstReturnLookback+1 {
		return nil
	}

	today := bars[len(bars)-1]
	n := len(bars)

	start := bars[n-1-momentumBurstReturnLookback]
	ret := (today.Close - start.Close) / start.Close
	if ret <= momentumBurstReturnMin {
		return nil
	}

	avgVol20 := avgVolume(bars[:n-1], momentumBurstReturnLookback)

	consolidation := bars[n-1-momentumBurstConsolidation : n-1]
	var consolidationHigh, consolidationLow float64
	consolidationHigh = consolidation[0].High
	consolidationLow = consolidation[0].Low
	for _, b := range consolidation {
		rangePct := (b.High - b.Low) / b.Close
		if rangePct >= momentumBurstRangeMax {
			return nil
		}
		if b.Volume >= avgVol20 {
			return nil
		}
		if b.High > consolidationHigh {
			consolidationHigh = b.High
		}
		if b.Low < consolidationLow {
			consolidationLow = b.Low
		}
	}

	if today.Close <= consolidationHigh {
		return nil
	}
	if today.Volume <= avgVol20 {
		return nil
	}

	return &Signal{
		Pattern:    "MomentumBurst",
		Symbol:     symbol,
		Confidence: momentumBurstConf,
		EntryPrice: today.High * momentumBurstEntryMultiplier,
		StopPrice:  consolidationLow,
		Timestamp:  today.Timestamp,
		Metadata: map[string]interface{}{
			"return_20bar": ret,
		},
	}
}
