package market

import (
	"context"
	"time"
)

// Bar is a single polled observation: one symbol's latest price (and,
// where the source reports it, volume) at a point in time.
type Bar struct {
	Timestamp time.Time
	Symbol    string
	Price     float64
	Volume    float64
}

// Source is one external data feed a harvester polls. IsCrypto reports
// whether the feed should be polled around the clock (true) or only
// during market hours (false, per IsOpenForPolling).
type Source interface {
	Name() string
	IsCrypto() bool
	FetchLatestBar(ctx context.Context, symbol string) (Bar, error)
}

// CoinGeckoSource adapts the cached CoinGecko client to the Source
// contract for crypto symbols.
type CoinGeckoSource struct {
	client *CachedCoinGeckoClient
}

// NewCoinGeckoSource wraps client as a crypto Source.
func NewCoinGeckoSource(client *CachedCoinGeckoClient) *CoinGeckoSource {
	return &CoinGeckoSource{client: client}
}

func (s *CoinGeckoSource) Name() string   { return "coingecko" }
func (s *CoinGeckoSource) IsCrypto() bool { return true }

func (s *CoinGeckoSource) FetchLatestBar(ctx context.Context, symbol string) (Bar, error) {
	result, err := s.client.GetPrice(ctx, symbol, "usd")
	if err != nil {
		return Bar{}, err
	}
	return Bar{Timestamp: time.Now(), Symbol: symbol, Price: result.Price}, nil
}
