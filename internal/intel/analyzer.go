// Package intel adapts the narrow-feature intel-bus signals — social
// score, fed bias, geopolitical risk, weather edge — into the Autopilot's
// generic Analyzer contract. None of these run their own scan: each one
// simply reads whatever the producing harvester last published and turns
// it into an opportunity (or a NoSignal) for the loop to rank.
package intel

import (
	"context"
	"fmt"

	"github.com/meridianquant/orbitron/internal/analyzer"
	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// SocialScorePayload mirrors the `intel:social_score` shape: `{score,
// top_ticker}`.
type SocialScorePayload struct {
	Score     float64 `json:"score"`
	TopTicker string  `json:"top_ticker"`
}

// SocialScoreAnalyzer turns the social-sentiment harvester's top ticker
// into an opportunity when its score clears threshold.
type SocialScoreAnalyzer struct {
	b         *bus.Bus
	threshold float64
	odds      float64
}

// NewSocialScoreAnalyzer builds a SocialScoreAnalyzer. odds is the decimal
// payout this analyzer reports for Kelly sizing; callers without a venue-
// specific payout should pass 2.0 (even money).
func NewSocialScoreAnalyzer(b *bus.Bus, threshold, odds float64) *SocialScoreAnalyzer {
	return &SocialScoreAnalyzer{b: b, threshold: threshold, odds: odds}
}

func (a *SocialScoreAnalyzer) Module() string     { return "social_score" }
func (a *SocialScoreAnalyzer) Threshold() float64 { return a.threshold }

func (a *SocialScoreAnalyzer) Analyze(ctx context.Context) analyzer.Result {
	var payload SocialScorePayload
	if !bus.ReadValue(ctx, a.b, bus.KeySocialScore, &payload) {
		return analyzer.NoSignalResult(a.Module(), "no social_score signal published")
	}
	if payload.TopTicker == "" {
		return analyzer.NoSignalResult(a.Module(), "social_score signal has no top ticker")
	}
	extras := map[string]interface{}{"ticker": payload.TopTicker, "asset_class": tradesignal.AssetEquity, "signal": string(tradesignal.ActionBuy)}
	return analyzer.SuccessResult(a.Module(), string(tradesignal.ActionBuy), payload.Score, a.odds, extras)
}

// FedBiasPayload mirrors the `intel:fed_bias` shape: `{bias, confidence}`.
// bias is "hawkish", "dovish", or "neutral"; confidence is [0,1].
type FedBiasPayload struct {
	Bias       string  `json:"bias"`
	Confidence float64 `json:"confidence"`
}

// FedBiasAnalyzer turns a strongly-held Fed bias into a macro bond-proxy
// opportunity: dovish favors a long rate-sensitive ticker, hawkish favors
// a short.
type FedBiasAnalyzer struct {
	b         *bus.Bus
	ticker    string
	threshold float64
	odds      float64
}

// NewFedBiasAnalyzer builds a FedBiasAnalyzer targeting ticker — the
// rate-sensitive instrument (e.g. a Treasury-bond ETF) the caller wants
// traded off Fed-bias sentiment.
func NewFedBiasAnalyzer(b *bus.Bus, ticker string, threshold, odds float64) *FedBiasAnalyzer {
	return &FedBiasAnalyzer{b: b, ticker: ticker, threshold: threshold, odds: odds}
}

func (a *FedBiasAnalyzer) Module() string     { return "fed_bias" }
func (a *FedBiasAnalyzer) Threshold() float64 { return a.threshold }

func (a *FedBiasAnalyzer) Analyze(ctx context.Context) analyzer.Result {
	var payload FedBiasPayload
	if !bus.ReadValue(ctx, a.b, bus.KeyFedBias, &payload) {
		return analyzer.NoSignalResult(a.Module(), "no fed_bias signal published")
	}

	var action tradesignal.Action
	switch payload.Bias {
	case "dovish":
		action = tradesignal.ActionBuy
	case "hawkish":
		action = tradesignal.ActionSell
	default:
		return analyzer.NoSignalResult(a.Module(), fmt.Sprintf("fed_bias is neutral/unrecognized: %q", payload.Bias))
	}

	extras := map[string]interface{}{"ticker": a.ticker, "asset_class": tradesignal.AssetEquity, "signal": string(action)}
	return analyzer.SuccessResult(a.Module(), string(action), payload.Confidence*100, a.odds, extras)
}

// GeopoliticalRiskPayload mirrors the `intel:geopolitical_risk` shape:
// `{score, level, top_event, trend}`.
type GeopoliticalRiskPayload struct {
	Score    float64 `json:"score"`
	Level    string  `json:"level"`
	TopEvent string  `json:"top_event"`
	Trend    string  `json:"trend"`
}

// GeopoliticalRiskAnalyzer trades a defensive hedge ticker (e.g. gold or a
// volatility proxy) long when geopolitical risk is escalating.
type GeopoliticalRiskAnalyzer struct {
	b           *bus.Bus
	hedgeTicker string
	threshold   float64
	odds        float64
}

func NewGeopoliticalRiskAnalyzer(b *bus.Bus, hedgeTicker string, threshold, odds float64) *GeopoliticalRiskAnalyzer {
	return &GeopoliticalRiskAnalyzer{b: b, hedgeTicker: hedgeTicker, threshold: threshold, odds: odds}
}

func (a *GeopoliticalRiskAnalyzer) Module() string     { return "geopolitical_risk" }
func (a *GeopoliticalRiskAnalyzer) Threshold() float64 { return a.threshold }

func (a *GeopoliticalRiskAnalyzer) Analyze(ctx context.Context) analyzer.Result {
	var payload GeopoliticalRiskPayload
	if !bus.ReadValue(ctx, a.b, bus.KeyGeopoliticalRisk, &payload) {
		return analyzer.NoSignalResult(a.Module(), "no geopolitical_risk signal published")
	}
	if payload.Trend != "escalating" {
		return analyzer.NoSignalResult(a.Module(), fmt.Sprintf("geopolitical risk trend is %q, not escalating", payload.Trend))
	}

	extras := map[string]interface{}{
		"ticker":      a.hedgeTicker,
		"asset_class": tradesignal.AssetEquity,
		"signal":      string(tradesignal.ActionBuy),
		"top_event":   payload.TopEvent,
	}
	return analyzer.SuccessResult(a.Module(), string(tradesignal.ActionBuy), payload.Score, a.odds, extras)
}

// WeatherEdgeAnalyzer reads the live Kalshi-sourced `intel:weather_edge`
// map of city to edge percentage and, when a city's edge clears
// threshold, proposes that city's weather prediction-market ticker as an
// opportunity. Per the live-vs-simulated-book distinction, this analyzer
// only ever consumes what the harvester actually publishes — it never
// fabricates an edge for a city absent from the map.
type WeatherEdgeAnalyzer struct {
	b          *bus.Bus
	cityTicker map[string]string // city -> Kalshi event ticker
	threshold  float64
	odds       float64
}

func NewWeatherEdgeAnalyzer(b *bus.Bus, cityTicker map[string]string, threshold, odds float64) *WeatherEdgeAnalyzer {
	return &WeatherEdgeAnalyzer{b: b, cityTicker: cityTicker, threshold: threshold, odds: odds}
}

func (a *WeatherEdgeAnalyzer) Module() string     { return "weather_edge" }
func (a *WeatherEdgeAnalyzer) Threshold() float64 { return a.threshold }

func (a *WeatherEdgeAnalyzer) Analyze(ctx context.Context) analyzer.Result {
	var edges map[string]float64
	if !bus.ReadValue(ctx, a.b, bus.KeyWeatherEdge, &edges) {
		return analyzer.NoSignalResult(a.Module(), "no weather_edge signal published")
	}

	bestCity, bestEdge := "", 0.0
	for city, edge := range edges {
		if _, tracked := a.cityTicker[city]; !tracked {
			continue
		}
		if edge > bestEdge {
			bestCity, bestEdge = city, edge
		}
	}
	if bestCity == "" {
		return analyzer.NoSignalResult(a.Module(), "no tracked city cleared a usable edge")
	}

	extras := map[string]interface{}{
		"ticker":      a.cityTicker[bestCity],
		"asset_class": tradesignal.AssetPredictionMarket,
		"signal":      string(tradesignal.ActionBuy),
		"city":        bestCity,
	}
	return analyzer.SuccessResult(a.Module(), string(tradesignal.ActionBuy), bestEdge*100, a.odds, extras)
}
