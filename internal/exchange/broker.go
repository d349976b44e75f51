package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// BrokerPosition is the uniform position shape returned across every venue.
type BrokerPosition struct {
	Symbol          string
	Quantity        float64
	MarketValue     float64
	AverageBuyPrice float64
}

// Broker is the full venue-agnostic contract every adapter implements.
// It generalizes Exchange (crypto order placement only) with the
// authentication, balance, and quote operations the Broker Router and
// Signal Router need to treat every venue uniformly.
type Broker interface {
	Authenticate(ctx context.Context) error
	GetBuyingPower(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
	SubmitOrder(ctx context.Context, symbol string, amount float64, side OrderSide, orderType OrderType, limitPrice float64) (*Order, error)
	SubmitOrderByQuantity(ctx context.Context, symbol string, qty float64, side OrderSide, orderType OrderType, limitPrice float64) (*Order, error)
	CancelAllOrders(ctx context.Context) error
	Name() string
}

// BracketSubmitter is implemented by brokers that support native bracket
// orders. Not every venue does, so it is kept separate from Broker rather
// than forcing every adapter to stub it out.
type BracketSubmitter interface {
	SubmitBracketOrder(ctx context.Context, symbol string, amount float64, side OrderSide, takeProfitPct, stopLossPct float64) (*Order, error)
}

// defaultMaxSlippagePct is the smart-limit slippage budget absent explicit
// configuration.
const defaultMaxSlippagePct = 0.005

// rateLimitRetryDelay is how long SubmitOrderRetrying waits before its
// single retry on an HTTP 429.
const rateLimitRetryDelay = 5 * time.Second

// ErrRateLimited is returned by an adapter's order path on HTTP 429 so
// callers can distinguish it from other submission failures.
var ErrRateLimited = errors.New("exchange: rate limited")

// BuildSmartLimit computes the limit price for a smart-limit order: the
// current price nudged by maxSlippagePct in the direction that favors
// immediate execution (up for buys, down for sells). A zero or negative
// maxSlippagePct falls back to the 0.5% default.
func BuildSmartLimit(currentPrice float64, side OrderSide, maxSlippagePct float64) float64 {
	if maxSlippagePct <= 0 {
		maxSlippagePct = defaultMaxSlippagePct
	}
	if side == OrderSideBuy {
		return currentPrice * (1 + maxSlippagePct)
	}
	return currentPrice * (1 - maxSlippagePct)
}

// SubmitOrderRetrying wraps a broker's SubmitOrder with the single-retry-
// on-rate-limit policy described in the Broker Adapter contract: a 429
// retries exactly once, after rateLimitRetryDelay, and any further failure
// is surfaced to the caller.
func SubmitOrderRetrying(ctx context.Context, b Broker, symbol string, amount float64, side OrderSide, orderType OrderType, limitPrice float64) (*Order, error) {
	order, err := b.SubmitOrder(ctx, symbol, amount, side, orderType, limitPrice)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrRateLimited) {
		return nil, err
	}

	log.Warn().Str("broker", b.Name()).Str("symbol", symbol).Msg("order rate limited, retrying once after delay")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(rateLimitRetryDelay):
	}

	order, err = b.SubmitOrder(ctx, symbol, amount, side, orderType, limitPrice)
	if err != nil {
		return nil, fmt.Errorf("order retry after rate limit failed: %w", err)
	}
	return order, nil
}

// BracketPrices translates percentage take-profit/stop-loss rules into
// absolute prices at the given entry, per side.
func BracketPrices(entryPrice float64, side OrderSide, takeProfitPct, stopLossPct float64) (takeProfit, stopLoss float64) {
	if side == OrderSideBuy {
		return entryPrice * (1 + takeProfitPct), entryPrice * (1 - stopLossPct)
	}
	return entryPrice * (1 - takeProfitPct), entryPrice * (1 + stopLossPct)
}
