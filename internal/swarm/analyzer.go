package swarm

import (
	"context"
	"fmt"

	"github.com/meridianquant/orbitron/internal/analyzer"
	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/indicators"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// equityRewardRiskOdds is the decimal odds the swarm analyzer reports to
// the Autopilot's Kelly sizing step — it mirrors the Exit Engine's own
// 5%/2% take-profit/stop-loss ratio (1 + 5/2 = 3.5) rather than inventing
// an unrelated payout, since that is the actual reward:risk a swarm-sized
// equity position will realize.
const equityRewardRiskOdds = 3.5

// PriceHistory supplies the trailing closes, current price, and a fair-
// value estimate the swarm's three scorers need for one symbol. The
// Autopilot itself never depends on this — only the analyzer adapter does
// — so a harvester, a cache, or a test fake can satisfy it interchangeably.
type PriceHistory interface {
	Closes(ctx context.Context, symbol string) ([]float64, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	FairValue(ctx context.Context, symbol string) (float64, error)
}

// Analyzer adapts the CIO consensus into the Autopilot's generic Analyzer
// contract for a single symbol.
type Analyzer struct {
	symbol     string
	assetClass tradesignal.AssetClass
	threshold  float64
	svc        *indicators.Service
	history    PriceHistory
	b          *bus.Bus
}

// NewAnalyzer builds a swarm Analyzer for symbol. threshold is the minimum
// [0,100] score (consensus confidence as a percentage) the autopilot
// requires before treating a consensus EXECUTE call as an opportunity.
func NewAnalyzer(symbol string, assetClass tradesignal.AssetClass, threshold float64, svc *indicators.Service, history PriceHistory, b *bus.Bus) *Analyzer {
	return &Analyzer{symbol: symbol, assetClass: assetClass, threshold: threshold, svc: svc, history: history, b: b}
}

func (a *Analyzer) Module() string     { return "technical_swarm:" + a.symbol }
func (a *Analyzer) Threshold() float64 { return a.threshold }

// Analyze runs the three scorers and the CIO consensus for the analyzer's
// symbol, returning NoSignal for a PASS disposition or any input the
// scorers can't yet work with (too little history, no fair-value model),
// and Error only for an actual data-fetch failure.
func (a *Analyzer) Analyze(ctx context.Context) analyzer.Result {
	module := a.Module()

	closes, err := a.history.Closes(ctx, a.symbol)
	if err != nil {
		return analyzer.ErrorResult(module, fmt.Errorf("swarm: fetch closes: %w", err))
	}

	technical, err := Technical(a.svc, closes)
	if err != nil {
		return analyzer.NoSignalResult(module, err.Error())
	}

	price, err := a.history.CurrentPrice(ctx, a.symbol)
	if err != nil {
		return analyzer.ErrorResult(module, fmt.Errorf("swarm: fetch current price: %w", err))
	}

	fairValue, err := a.history.FairValue(ctx, a.symbol)
	if err != nil {
		return analyzer.ErrorResult(module, fmt.Errorf("swarm: fetch fair value: %w", err))
	}

	fundamental := Fundamental(price, fairValue)
	sentiment := Sentiment(ctx, a.b)

	consensus := CIOConsensus(technical, fundamental, sentiment)
	if consensus.Disposition != Execute {
		return analyzer.NoSignalResult(module, "consensus disposition is PASS")
	}

	extras := map[string]interface{}{
		"ticker":      a.symbol,
		"asset_class": a.assetClass,
		"signal":      string(consensus.Action),
	}
	return analyzer.SuccessResult(module, string(consensus.Action), consensus.Confidence*100, equityRewardRiskOdds, extras)
}
