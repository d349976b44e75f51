package catalog

const (
	episodicPivotGapPct   = 0.04
	episodicPivotLookback = 252
	episodicPivotConf     = 0.80
)

// episodicPivot fires on a gap-up of more than 4% versus the prior close,
// confirmed by today's volume being the highest of the trailing year.
func episodicPivot(symbol string, bars []Bar) *Signal {
	if len(bars) < episodicPivotLookback+1 {
		return nil
	}

	today := bars[len(bars)-1]
	prior := bars[len(bars)-2]

	gapPct := (today.Open - prior.Close) / prior.Close
	if gapPct <= episodicPivotGapPct {
		return nil
	}

	trailing := bars[len(bars)-episodicPivotLookback:]
	if today.Volume < maxVolume(trailing, episodicPivotLookback) {
		return nil
	}

	return &Signal{
		Pattern:    "EpisodicPivot",
		Symbol:     symbol,
		Confidence: episodicPivotConf,
		EntryPrice: today.High,
		StopPrice:  today.Low,
		Timestamp:  today.Timestamp,
		Metadata: map[string]interface{}{
			"gap_pct": gapPct,
		},
	}
}
