package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// MockBroker adapts MockExchange to the full Broker contract for paper
// trading: buying power and positions are tracked in-memory rather than
// fetched from a live venue.
type MockBroker struct {
	exchange *MockExchange
	name     string

	mu          sync.RWMutex
	buyingPower float64
	positions   map[string]BrokerPosition
}

// NewMockBroker wraps exchange with a starting buying power balance.
func NewMockBroker(name string, exchange *MockExchange, startingBuyingPower float64) *MockBroker {
	return &MockBroker{
		exchange:    exchange,
		name:        name,
		buyingPower: startingBuyingPower,
		positions:   make(map[string]BrokerPosition),
	}
}

func (m *MockBroker) Name() string { return m.name }

func (m *MockBroker) Authenticate(ctx context.Context) error {
	// Paper trading has no session to establish; always succeeds and is
	// idempotent by construction.
	return nil
}

func (m *MockBroker) GetBuyingPower(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buyingPower, nil
}

func (m *MockBroker) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BrokerPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockBroker) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, ok := m.exchange.MarketPrice(symbol)
	if !ok {
		return 0, fmt.Errorf("mock broker: no market price set for %s", symbol)
	}
	return price, nil
}

func (m *MockBroker) SubmitOrder(ctx context.Context, symbol string, amount float64, side OrderSide, orderType OrderType, limitPrice float64) (*Order, error) {
	price, err := m.GetLatestPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	qty := amount / price
	return m.SubmitOrderByQuantity(ctx, symbol, qty, side, orderType, limitPrice)
}

func (m *MockBroker) SubmitOrderByQuantity(ctx context.Context, symbol string, qty float64, side OrderSide, orderType OrderType, limitPrice float64) (*Order, error) {
	resp, err := m.exchange.PlaceOrder(ctx, PlaceOrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Quantity: qty,
		Price:    limitPrice,
	})
	if err != nil {
		return nil, err
	}

	order, err := m.exchange.GetOrder(ctx, resp.OrderID)
	if err != nil {
		return nil, err
	}

	m.applyFill(symbol, side, order)
	return order, nil
}

func (m *MockBroker) CancelAllOrders(ctx context.Context) error {
	log.Info().Str("broker", m.name).Msg("mock broker: cancel all orders requested")
	// The mock exchange fills orders synchronously/near-synchronously in
	// simulateMarketFill; there is nothing resting to cancel in practice,
	// but the call is kept so callers can treat every broker uniformly.
	return nil
}

func (m *MockBroker) applyFill(symbol string, side OrderSide, order *Order) {
	if order.FilledQty <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	notional := order.FilledQty * order.AvgFillPrice
	switch side {
	case OrderSideBuy:
		m.buyingPower -= notional
	case OrderSideSell:
		m.buyingPower += notional
	}

	pos := m.positions[symbol]
	pos.Symbol = symbol
	switch side {
	case OrderSideBuy:
		totalCost := pos.AverageBuyPrice*pos.Quantity + notional
		pos.Quantity += order.FilledQty
		if pos.Quantity > 0 {
			pos.AverageBuyPrice = totalCost / pos.Quantity
		}
	case OrderSideSell:
		pos.Quantity -= order.FilledQty
		if pos.Quantity <= 0 {
			delete(m.positions, symbol)
			return
		}
	}
	pos.MarketValue = pos.Quantity * order.AvgFillPrice
	m.positions[symbol] = pos
}
