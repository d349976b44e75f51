package catalog

import (
	"testing"
	"time"
)

func flatBars(n int, price, volume float64) []Bar {
	bars := make([]Bar, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price * 1.001,
			Low:       price * 0.999,
			Close:     price,
			Volume:    volume,
		}
	}
	return bars
}

func TestEpisodicPivotGapUpWithRecordVolumeFires(t *testing.T) {
	bars := flatBars(253, 100, 1_000_000)
	bars[len(bars)-1].Open = 105
	bars[len(bars)-1].High = 106
	bars[len(bars)-1].Low = 104.5
	bars[len(bars)-1].Close = 105.5
	bars[len(bars)-1].Volume = 5_000_000

	sig := episodicPivot("TEST", bars)
	if sig == nil {
		t.Fatalf("expected EpisodicPivot to fire")
	}
	if sig.EntryPrice != bars[len(bars)-1].High {
		t.Fatalf("expected entry at today's high")
	}
}

func TestEpisodicPivotNoGapDoesNotFire(t *testing.T) {
	bars := flatBars(253, 100, 1_000_000)
	if sig := episodicPivot("TEST", bars); sig != nil {
		t.Fatalf("expected no signal without a gap, got %+v", sig)
	}
}

func TestInsideBar212Fires(t *testing.T) {
	bars := flatBars(5, 100, 1_000_000)
	n := len(bars)
	bars[n-2] = Bar{Open: 100, High: 103, Low: 99.5, Close: 102.5, Volume: 1_000_000}
	bars[n-3] = Bar{Open: 99, High: 100, Low: 98.5, Close: 99.5, Volume: 1_000_000}
	bars[n-1] = Bar{Open: 102, High: 102.8, Low: 100, Close: 102.3, Volume: 900_000}

	sig := insideBar212("TEST", bars)
	if sig == nil {
		t.Fatalf("expected InsideBar212 to fire")
	}
}

func TestInsideBar212RequiresContainment(t *testing.T) {
	bars := flatBars(5, 100, 1_000_000)
	n := len(bars)
	bars[n-2] = Bar{Open: 100, High: 103, Low: 99.5, Close: 102.5, Volume: 1_000_000}
	bars[n-3] = Bar{Open: 99, High: 100, Low: 98.5, Close: 99.5, Volume: 1_000_000}
	bars[n-1] = Bar{Open: 102, High: 104, Low: 100, Close: 103.5, Volume: 900_000} // breaks above bar N-1 high

	if sig := insideBar212("TEST", bars); sig != nil {
		t.Fatalf("expected no signal when today breaks out of bar N-1's range, got %+v", sig)
	}
}

func TestElephantBarRequiresGreenCandle(t *testing.T) {
	bars := flatBars(21, 100, 1_000_000)
	n := len(bars)
	bars[n-1] = Bar{Open: 105, High: 106, Low: 95, Close: 96, Volume: 1_000_000} // red candle
	if sig := elephantBar("TEST", bars); sig != nil {
		t.Fatalf("expected no signal for a red candle, got %+v", sig)
	}
}

func TestScanSymbolIsolatesPanickingDetector(t *testing.T) {
	detectors["panicky"] = func(symbol string, bars []Bar) *Signal {
		panic("boom")
	}
	defer delete(detectors, "panicky")

	// Should not panic the whole scan even though one detector blows up.
	_ = ScanSymbol("TEST", flatBars(10, 100, 1_000_000))
}

func TestScanSymbolHandlesShortHistory(t *testing.T) {
	signals := ScanSymbol("TEST", flatBars(2, 100, 1_000_000))
	if len(signals) != 0 {
		t.Fatalf("expected no detector to fire on a 2-bar history, got %d", len(signals))
	}
}
