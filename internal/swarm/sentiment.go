package swarm

import (
	"context"

	"github.com/meridianquant/orbitron/internal/bus"
)

// sentimentNeutralBand mirrors the sentiment agent's keyword-score
// classification band: scores within ±band of zero are neutral.
const sentimentNeutralBand = 0.15

// btcSentimentPayload mirrors the shape published at bus.KeyBTCSentiment.
type btcSentimentPayload = float64

// Sentiment scores a symbol from the Intel Bus's published BTC sentiment
// signal, the same aggregate the sentiment agent maintains from news and
// Fear & Greed Index sources. Absence of a published signal — expired or
// never written — is treated as NEUTRAL, never as an error, per the bus's
// own no-signal contract.
func Sentiment(ctx context.Context, b *bus.Bus) Verdict {
	var score btcSentimentPayload
	if !bus.ReadValue(ctx, b, bus.KeyBTCSentiment, &score) {
		return Neutral
	}

	switch {
	case score > sentimentNeutralBand:
		return Bullish
	case score < -sentimentNeutralBand:
		return Bearish
	default:
		return Neutral
	}
}
