// Package ems implements the Signal Router: the boundary between validated
// Trade Signals and live order submission. It subscribes to the Intel
// Bus's trade_signals channel, validates every incoming signal, asks the
// Broker Router to pick a venue, submits the order, and records the fill
// to the Ledger. A second subscription to emergency_stop latches order
// submission off the instant a CANCEL_ALL broadcast arrives — independent
// of whether this process also owns the KillSwitch instance that raised
// it, so a Router running in its own process still stops dispatching.
package ems

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/exchange"
	"github.com/meridianquant/orbitron/internal/killswitch"
	"github.com/meridianquant/orbitron/internal/ledger"
	"github.com/meridianquant/orbitron/internal/orchestrator"
	"github.com/meridianquant/orbitron/internal/router"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// agentName is this component's address on the message bus: subscriptions
// below bind to agents.ems.<topic>.
const agentName = "ems"

// minAllocationNotional below which a sized order is skipped rather than
// submitted, avoiding broker-rejected dust orders.
const minAllocationNotional = 1.0

// Router consumes Trade Signals and dispatches them to a Broker.
type Router struct {
	mb     *orchestrator.MessageBus
	routes *router.Router
	ledger *ledger.Store
	kill   *killswitch.KillSwitch

	halted atomic.Bool

	tradeSub *orchestrator.Subscription
	stopSub  *orchestrator.Subscription
}

// New constructs a Router. kill may be nil if this process does not also
// run the KillSwitch — the emergency_stop broadcast subscription is
// sufficient on its own to halt dispatch.
func New(mb *orchestrator.MessageBus, routes *router.Router, store *ledger.Store, kill *killswitch.KillSwitch) *Router {
	return &Router{mb: mb, routes: routes, ledger: store, kill: kill}
}

// Start subscribes to trade_signals and emergency_stop.
func (r *Router) Start() error {
	stopSub, err := r.mb.SubscribeBroadcasts(bus.ChannelEmergencyStop, func(msg *orchestrator.AgentMessage) error {
		r.halted.Store(true)
		log.Error().Msg("ems: emergency_stop received, order submission latched off")
		return nil
	})
	if err != nil {
		return fmt.Errorf("ems: subscribe emergency_stop: %w", err)
	}
	r.stopSub = stopSub

	tradeSub, err := r.mb.Subscribe(agentName, bus.ChannelTradeSignals, r.handle)
	if err != nil {
		_ = stopSub.Unsubscribe()
		return fmt.Errorf("ems: subscribe trade_signals: %w", err)
	}
	r.tradeSub = tradeSub
	return nil
}

// Stop tears down both subscriptions.
func (r *Router) Stop() {
	if r.tradeSub != nil {
		_ = r.tradeSub.Unsubscribe()
	}
	if r.stopSub != nil {
		_ = r.stopSub.Unsubscribe()
	}
}

// Halted reports whether an emergency_stop has latched this router off.
func (r *Router) Halted() bool {
	return r.halted.Load()
}

func (r *Router) handle(msg *orchestrator.AgentMessage) error {
	var sig tradesignal.Signal
	if err := json.Unmarshal(msg.Payload, &sig); err != nil {
		log.Warn().Err(err).Msg("ems: failed to decode trade signal, dropping")
		return nil
	}

	if err := sig.Validate(); err != nil {
		log.Warn().Err(err).Str("ticker", sig.TickerOrEvent).Msg("ems: rejected trade signal at pipeline boundary")
		return nil
	}

	if r.halted.Load() {
		log.Warn().Str("ticker", sig.TickerOrEvent).Msg("ems: dropped signal, emergency stop latched")
		return nil
	}
	if r.kill != nil && (r.kill.Triggered() || r.kill.IsStrategyHalted(sig.TargetBrokerage)) {
		log.Warn().Str("ticker", sig.TickerOrEvent).Str("brokerage", sig.TargetBrokerage).Msg("ems: dropped signal, kill switch active")
		return nil
	}
	if sig.Action == tradesignal.ActionHold {
		return nil
	}

	return r.dispatch(context.Background(), sig)
}

func (r *Router) dispatch(ctx context.Context, sig tradesignal.Signal) error {
	broker, err := r.routes.Select(sig.TickerOrEvent, time.Now())
	if err != nil {
		log.Error().Err(err).Str("ticker", sig.TickerOrEvent).Msg("ems: no broker available for signal")
		return nil
	}

	buyingPower, err := broker.GetBuyingPower(ctx)
	if err != nil {
		log.Error().Err(err).Str("broker", broker.Name()).Msg("ems: failed to read buying power")
		return nil
	}

	notional := buyingPower * sig.ProposedAllocationPct
	if notional < minAllocationNotional {
		log.Debug().Str("ticker", sig.TickerOrEvent).Float64("notional", notional).Msg("ems: allocation below dust threshold, skipping")
		return nil
	}

	side := sideFor(sig.Action)
	order, err := exchange.SubmitOrderRetrying(ctx, broker, sig.TickerOrEvent, notional, side, exchange.OrderTypeMarket, 0)
	if err != nil {
		log.Error().Err(err).Str("ticker", sig.TickerOrEvent).Str("broker", broker.Name()).Msg("ems: order submission failed")
		return nil
	}

	if r.ledger == nil {
		return nil
	}

	entry := ledger.Entry{
		Timestamp: time.Now(),
		Action:    ledgerActionFor(side),
		Ticker:    sig.TickerOrEvent,
		Price:     order.AvgFillPrice,
		Quantity:  order.FilledQty,
		Reason:    sig.AgentReasoning,
		Broker:    broker.Name(),
	}
	if err := r.ledger.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("ticker", sig.TickerOrEvent).Msg("ems: order filled but ledger append failed")
	}
	return nil
}

func sideFor(a tradesignal.Action) exchange.OrderSide {
	switch a {
	case tradesignal.ActionSell, tradesignal.ActionShort:
		return exchange.OrderSideSell
	default:
		return exchange.OrderSideBuy
	}
}

func ledgerActionFor(side exchange.OrderSide) ledger.Action {
	if side == exchange.OrderSideSell {
		return ledger.ActionSell
	}
	return ledger.ActionBuy
}
