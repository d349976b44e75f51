package catalog

const (
	elephantBarRangeLookback    = 20
	elephantBarRangeMultiple    = 2.0
	elephantBarLowProximityPct  = 0.03
	elephantBarConf             = 0.75
	elephantBarEntryMultiplier  = 1.001
)

// elephantBar fires on a large green candle whose range dwarfs the recent
// average and whose low sits near the 20-bar SMA.
func elephantBar(symbol string, bars []Bar) *Signal {
	if len(bars) < elephantBarRangeLookback+1 {
		return nil
	}

	today := bars[len(bars)-1]
	if today.Close <= today.Open {
		return nil
	}

	prior := bars[:len(bars)-1]
	avgRange20 := avgRange(prior, elephantBarRangeLookback)
	if avgRange20 <= 0 {
		return nil
	}

	todayRange := today.High - today.Low
	if todayRange <= elephantBarRangeMultiple*avgRange20 {
		return nil
	}

	sma20 := sma(prior, elephantBarRangeLookback)
	if sma20 <= 0 {
		return nil
	}
	proximity := (today.Low - sma20) / sma20
	if proximity < 0 {
		proximity = -proximity
	}
	if proximity > elephantBarLowProximityPct {
		return nil
	}

	return &Signal{
		Pattern:    "ElephantBar",
		Symbol:     symbol,
		Confidence: elephantBarConf,
		EntryPrice: today.High * elephantBarEntryMultiplier,
		StopPrice:  today.Low,
		Timestamp:  today.Timestamp,
		Metadata: map[string]interface{}{
			"range_vs_avg": todayRange / avgRange20,
		},
	}
}
