package catalog

const (
	insideBar212PriorMoveMin  = 0.01 // 1%
	insideBar212Conf          = 0.68
	insideBar212EntryMult     = 1.001
	insideBar212StopMult      = 0.999
)

// insideBar212 fires on a strong-close bar followed by a tight inside bar:
// bar N-1 closed up more than 1% from its open and more than 1% above the
// prior close, and today's range sits entirely inside bar N-1's range.
func insideBar212(symbol string, bars []Bar) *Signal {
	n := len(bars)
	if n < 3 {
		return nil
	}

	today := bars[n-1]
	barN1 := bars[n-2]
	barN2 := bars[n-3]

	moveFromOpen := (barN1.Close - barN1.Open) / barN1.Open
	moveFromPriorClose := (barN1.Close - barN2.Close) / barN2.Close
	if moveFromOpen <= insideBar212PriorMoveMin || moveFromPriorClose <= insideBar212PriorMoveMin {
		return nil
	}

	if today.High >= barN1.High || today.Low <= barN1.Low {
		return nil
	}

	return &Signal{
		Pattern:    "InsideBar212",
		Symbol:     symbol,
		Confidence: insideBar212Conf,
		EntryPrice: today.High * insideBar212EntryMult,
		StopPrice:  today.Low * insideBar212StopMult,
		Timestamp:  today.Timestamp,
		Metadata: map[string]interface{}{
			"bar_n1_move_from_open": moveFromOpen,
		},
	}
}
