// Package router implements the Broker Router: adapter selection by symbol
// and wall-clock session, plus cross-adapter health and position
// aggregation.
package router

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianquant/orbitron/internal/exchange"
)

// cryptoSymbolPattern matches tickers that should always route to the
// crypto venue regardless of session window.
var cryptoSymbolPattern = regexp.MustCompile(`(?i)(BTC|ETH|USDT|USDC)`)

var easternLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Router selects a Broker per request using symbol and wall-clock, per the
// six-rule precedence order.
type Router struct {
	enabled         bool
	primary         string
	cryptoVenue     string
	extendedVenue   string
	brokers         map[string]exchange.Broker
}

// New constructs a Router. primary, cryptoVenue, and extendedVenue are
// broker names that must be present in brokers (or will be, by the time
// Select is called); enabled mirrors the "routing disabled" escape hatch —
// when false, Select always returns the primary broker.
func New(enabled bool, primary, cryptoVenue, extendedVenue string, brokers map[string]exchange.Broker) *Router {
	return &Router{
		enabled:       enabled,
		primary:       primary,
		cryptoVenue:   cryptoVenue,
		extendedVenue: extendedVenue,
		brokers:       brokers,
	}
}

// SelectName returns the broker name Select would choose, without
// requiring that broker to already be registered — useful for routing
// decisions made before every adapter has been constructed.
func (r *Router) SelectName(symbol string, now time.Time) string {
	if !r.enabled {
		return r.primary
	}

	if cryptoSymbolPattern.MatchString(symbol) {
		return r.cryptoVenue
	}

	et := now.In(easternLocation)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return r.primary
	}

	hm := et.Hour()*100 + et.Minute()
	switch {
	case hm >= 400 && hm < 930:
		return r.extendedVenue // pre-market
	case hm >= 1600 && hm < 2000:
		return r.extendedVenue // after-hours
	case hm >= 930 && hm < 1600:
		return r.primary // regular hours
	default:
		return r.primary
	}
}

// Select resolves SelectName to a live Broker. An error is returned only if
// the chosen name has no registered adapter.
func (r *Router) Select(symbol string, now time.Time) (exchange.Broker, error) {
	name := r.SelectName(symbol, now)
	b, ok := r.brokers[name]
	if !ok {
		return nil, fmt.Errorf("router: no adapter registered for venue %q (symbol %s)", name, symbol)
	}
	return b, nil
}

// CheckHealth pings every registered adapter with a lightweight buying-
// power call and returns per-adapter reachability.
func (r *Router) CheckHealth(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(r.brokers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for name, b := range r.brokers {
		name, b := name, b
		g.Go(func() error {
			_, err := b.GetBuyingPower(gctx)
			mu.Lock()
			results[name] = err == nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// GetPositions aggregates positions across every initialized adapter when
// routing is enabled; when disabled, only the primary broker's positions
// are returned.
func (r *Router) GetPositions(ctx context.Context) ([]exchange.BrokerPosition, error) {
	if !r.enabled {
		b, ok := r.brokers[r.primary]
		if !ok {
			return nil, fmt.Errorf("router: primary broker %q not registered", r.primary)
		}
		return b.GetPositions(ctx)
	}

	var all []exchange.BrokerPosition
	for name, b := range r.brokers {
		positions, err := b.GetPositions(ctx)
		if err != nil {
			continue // partial aggregation: one venue's failure doesn't block the rest
		}
		_ = name
		all = append(all, positions...)
	}
	return all, nil
}
