// Package autopilot implements the Autopilot loop: the periodic
// scan-and-execute daemon that fans out to every registered Analyzer,
// ranks the resulting opportunities, applies the gate chain, sizes the
// winner via Kelly, and dispatches it through the Broker Router. The
// Exit Engine (exit.go) runs at the head of every cycle, ahead of any new
// entry.
package autopilot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog/log"

	"github.com/meridianquant/orbitron/internal/alerts"
	"github.com/meridianquant/orbitron/internal/analyzer"
	"github.com/meridianquant/orbitron/internal/audit"
	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/exchange"
	"github.com/meridianquant/orbitron/internal/gate"
	"github.com/meridianquant/orbitron/internal/killswitch"
	"github.com/meridianquant/orbitron/internal/ledger"
	"github.com/meridianquant/orbitron/internal/regime"
	"github.com/meridianquant/orbitron/internal/risk"
	"github.com/meridianquant/orbitron/internal/router"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// btcModuleName is the analyzer module name the macro penalty rule targets.
const btcModuleName = "btc_sentiment"

// Settings are the hot-reloadable controls the loop consults every cycle.
// Kept as a struct of callbacks/values rather than a *config.Config
// reference so the loop doesn't take a compile-time dependency on the
// whole application config shape.
type Settings struct {
	TradingEnabled     func() bool
	PaperMode          bool
	GlobalMinScore     float64 // in [0,100]
	MaxPositionPct     float64 // fraction of bankroll, e.g. 0.10
	KellyTier          risk.KellyFractionTier
	PortfolioHeatLimit float64 // skip new trades when intel:portfolio_heat exceeds this
	LoopInterval       time.Duration
	DisabledSleep      time.Duration
}

// defaultSettings fills in the loop cadence, the 0.8 portfolio-heat ceiling
// and the Kelly tier when they are left zero; every other field is
// deployment-specific and has no safe default.
func defaultSettings(s Settings) Settings {
	if s.PortfolioHeatLimit == 0 {
		s.PortfolioHeatLimit = 0.8
	}
	if s.LoopInterval == 0 {
		s.LoopInterval = 30 * time.Second
	}
	if s.DisabledSleep == 0 {
		s.DisabledSleep = 60 * time.Second
	}
	if s.KellyTier == "" {
		s.KellyTier = risk.KellyConservative
	}
	return s
}

// Autopilot is the central periodic loop described in the spec.
type Autopilot struct {
	settings  Settings
	bus       *bus.Bus
	analyzers []analyzer.Analyzer
	routes    *router.Router
	ledger    *ledger.Store
	kill      *killswitch.KillSwitch
	auditor   *audit.Logger
	alerts    *alerts.Manager

	st *state

	pausedMu sync.RWMutex
	paused   bool
}

// New constructs an Autopilot. analyzers is the registered set the loop
// fans out to every cycle; order is irrelevant since invocation is
// parallel and ranking is by score.
func New(
	settings Settings,
	b *bus.Bus,
	analyzers []analyzer.Analyzer,
	routes *router.Router,
	store *ledger.Store,
	kill *killswitch.KillSwitch,
	auditor *audit.Logger,
) *Autopilot {
	return &Autopilot{
		settings:  defaultSettings(settings),
		bus:       b,
		analyzers: analyzers,
		routes:    routes,
		ledger:    store,
		kill:      kill,
		auditor:   auditor,
		st:        newState(),
	}
}

// SetAlerter attaches the operator-alert channel the Exit Engine notifies
// on every position close. Optional — exits still execute without one.
func (a *Autopilot) SetAlerter(m *alerts.Manager) {
	a.alerts = m
}

// Bootstrap restores persisted state from the bus and seeds the book with
// the venue's current positions, per §4.14 steps 1-2. Call once before Run.
func (a *Autopilot) Bootstrap(ctx context.Context) {
	a.st.restore(ctx, a.bus)

	positions, err := a.routes.GetPositions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("autopilot: failed to seed positions from venues")
		return
	}
	a.st.seedPositions(positions)
}

// Run blocks, executing one cycle every LoopInterval until ctx is
// canceled. Trading-disabled and Paused both produce the 60s "disabled"
// sleep instead of the normal cadence, matching step 3a.
func (a *Autopilot) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if (a.settings.TradingEnabled != nil && !a.settings.TradingEnabled()) || a.IsPaused() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.settings.DisabledSleep):
				continue
			}
		}

		if err := a.Step(ctx); err != nil {
			log.Error().Err(err).Msg("autopilot: cycle failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.settings.LoopInterval):
		}
	}
}

// Pause suspends new entries; exits still run every cycle once resumed.
// Mirrors the teacher orchestrator's pause/resume idiom without the NATS
// broadcast, since no other process needs to observe this process's pause
// state.
func (a *Autopilot) Pause() error {
	a.pausedMu.Lock()
	defer a.pausedMu.Unlock()
	if a.paused {
		return fmt.Errorf("autopilot: already paused")
	}
	a.paused = true
	return nil
}

func (a *Autopilot) Resume() error {
	a.pausedMu.Lock()
	defer a.pausedMu.Unlock()
	if !a.paused {
		return fmt.Errorf("autopilot: not paused")
	}
	a.paused = false
	return nil
}

func (a *Autopilot) IsPaused() bool {
	a.pausedMu.RLock()
	defer a.pausedMu.RUnlock()
	return a.paused
}

// Step executes one full iteration: §4.14 steps 3b-3j. It never panics —
// an analyzer failure is isolated to that analyzer's result and logged,
// never allowed to abort the cycle.
func (a *Autopilot) Step(ctx context.Context) error {
	heat := a.readPortfolioHeat(ctx)
	btcSentiment, haveSentiment := a.readBTCSentiment(ctx)
	spyBearish := a.readSPYTrendBearish(ctx)

	if err := a.manageActiveExits(ctx); err != nil {
		log.Error().Err(err).Msg("autopilot: exit engine cycle failed")
	}

	if heat > a.settings.PortfolioHeatLimit {
		log.Warn().Float64("heat", heat).Msg("autopilot: portfolio heat ceiling hit, skipping new entries this cycle")
		a.st.persist(ctx, a.bus)
		return nil
	}

	results := a.runAnalyzers(ctx)
	opportunities := a.buildOpportunities(results, spyBearish, haveSentiment && btcSentiment < 0)

	if len(opportunities) == 0 {
		a.st.persist(ctx, a.bus)
		return nil
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].Score > opportunities[j].Score
	})
	best := opportunities[0]

	if err := a.tryExecute(ctx, best); err != nil {
		log.Error().Err(err).Str("module", best.Module).Msg("autopilot: failed to execute opportunity")
	}

	a.st.persist(ctx, a.bus)
	return nil
}

func (a *Autopilot) readPortfolioHeat(ctx context.Context) float64 {
	var heat float64
	bus.ReadValue(ctx, a.bus, bus.KeyPortfolioHeat, &heat)
	return heat
}

func (a *Autopilot) readBTCSentiment(ctx context.Context) (float64, bool) {
	var v float64
	ok := bus.ReadValue(ctx, a.bus, bus.KeyBTCSentiment, &v)
	return v, ok
}

func (a *Autopilot) readSPYTrendBearish(ctx context.Context) bool {
	var trend string
	if !bus.ReadValue(ctx, a.bus, bus.KeySPYTrend, &trend) {
		return false
	}
	return trend == "bearish" || trend == "BEARISH"
}

// readMacroRegime reads the Playbook Observer's latest snapshot off the bus
// and returns its macro Regime, translated into the gate package's own
// Regime type. A missing or unparseable snapshot falls back to GREEN, the
// gate's own permissive default for an unrecognized regime.
func (a *Autopilot) readMacroRegime(ctx context.Context) gate.Regime {
	var snap regime.Snapshot
	if !bus.ReadValue(ctx, a.bus, bus.KeyPlaybookSnapshot, &snap) {
		return gate.RegimeGreen
	}
	switch snap.Regime.Regime {
	case regime.Yellow:
		return gate.RegimeYellow
	case regime.Red:
		return gate.RegimeRed
	default:
		return gate.RegimeGreen
	}
}

// runAnalyzers fans out to every registered Analyzer in parallel; per
// spec'd concurrency model, only analyzer invocation proceeds in
// parallel — ranking and gating below are strictly sequential.
func (a *Autopilot) runAnalyzers(ctx context.Context) []analyzer.Result {
	results := make([]analyzer.Result, len(a.analyzers))
	g, gctx := errgroup.WithContext(ctx)

	for i, az := range a.analyzers {
		i, az := i, az
		g.Go(func() error {
			results[i] = a.runOne(gctx, az)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runOne isolates a single analyzer's panic, translating it into an Error
// result rather than letting it escape to the loop.
func (a *Autopilot) runOne(ctx context.Context, az analyzer.Analyzer) (result analyzer.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", az.Module()).Msg("autopilot: analyzer panicked, isolated")
			result = analyzer.ErrorResult(az.Module(), fmt.Errorf("panic: %v", r))
		}
	}()
	return az.Analyze(ctx)
}

func (a *Autopilot) buildOpportunities(results []analyzer.Result, spyBearish, btcSentimentNegative bool) []analyzer.Result {
	var opportunities []analyzer.Result

	for _, r := range results {
		switch r.Status {
		case analyzer.NoSignal:
			log.Debug().Str("module", r.Module).Str("reason", r.Reason).Msg("autopilot: analyzer reported no signal")
			continue
		case analyzer.Error:
			log.Warn().Str("module", r.Module).Str("reason", r.Reason).Msg("autopilot: analyzer reported error")
			continue
		case analyzer.Success:
		default:
			continue
		}

		score := r.Score
		if r.Module == btcModuleName && spyBearish && btcSentimentNegative {
			score *= 0.85
		}

		threshold := a.thresholdFor(r.Module)
		if score < threshold {
			continue
		}

		r.Score = score
		opportunities = append(opportunities, r)
	}

	return opportunities
}

func (a *Autopilot) thresholdFor(module string) float64 {
	for _, az := range a.analyzers {
		if az.Module() == module {
			return az.Threshold()
		}
	}
	return a.settings.GlobalMinScore
}

// tryExecute runs the Regime Gate and the four-stage gate chain against the
// single best opportunity and, if every gate clears, sizes and dispatches
// it. The Regime Gate sits ahead of the other four, matching its place in
// the pipeline between analyzer consensus and dispatch.
func (a *Autopilot) tryExecute(ctx context.Context, opp analyzer.Result) error {
	ticker := tickerFor(opp)
	now := time.Now()

	action := gateActionFor(opp)
	macroRegime := a.readMacroRegime(ctx)
	blocked, effective, reason := gate.Evaluate(action, opp.Score/100.0, macroRegime, opp.Module)
	if blocked {
		log.Debug().Str("ticker", ticker).Str("regime", string(macroRegime)).Float64("effective", effective).
			Str("reason", reason).Msg("autopilot: regime gate rejected opportunity")
		return nil
	}

	if a.st.isBlacklisted(ticker, now) {
		log.Debug().Str("ticker", ticker).Msg("autopilot: gate rejected, blacklist cooldown active")
		return nil
	}
	if a.st.alreadyHeld(ticker) {
		log.Debug().Str("ticker", ticker).Msg("autopilot: gate rejected, already held")
		return nil
	}

	tradeID := syntheticTradeID(opp.Module, ticker, now)
	if a.st.seenTradeID(tradeID) {
		log.Debug().Str("ticker", ticker).Msg("autopilot: gate rejected, duplicate synthetic trade id")
		return nil
	}

	if opp.Score < a.settings.GlobalMinScore {
		log.Debug().Str("ticker", ticker).Float64("score", opp.Score).Msg("autopilot: gate rejected, below global minimum score")
		return nil
	}

	odds := opp.Odds
	if odds <= 1 {
		odds = 2.0 // even-money default for analyzers without a discrete payout
	}
	sizePct := risk.KellyDiscreteOddsSized(opp.Score/100.0, odds, a.settings.KellyTier, a.settings.MaxPositionPct)
	if sizePct <= 0 {
		log.Debug().Str("ticker", ticker).Msg("autopilot: gate rejected, Kelly sizing produced zero allocation")
		return nil
	}

	broker, err := a.routes.Select(ticker, now)
	if err != nil {
		return fmt.Errorf("autopilot: no broker available for %s: %w", ticker, err)
	}

	buyingPower, err := broker.GetBuyingPower(ctx)
	if err != nil {
		return fmt.Errorf("autopilot: failed to read buying power: %w", err)
	}
	notional := buyingPower * sizePct

	side := exchange.OrderSideBuy
	if opp.Signal == string(tradesignal.ActionSell) || opp.Signal == string(tradesignal.ActionShort) {
		side = exchange.OrderSideSell
	}

	if a.settings.PaperMode {
		price, _ := broker.GetLatestPrice(ctx, ticker)
		qty := notional
		if price > 0 {
			qty = notional / price
		}
		a.st.recordTrade(TradeRecord{Module: opp.Module, Ticker: ticker, AssetClass: assetClassFor(opp), Side: actionFor(side), EntryPrice: price, Quantity: qty, EnteredAt: now})
		a.st.markTradeID(tradeID)
		a.logDispatch(ctx, opp, ticker, notional, true, "")
		return nil
	}

	order, err := exchange.SubmitOrderRetrying(ctx, broker, ticker, notional, side, exchange.OrderTypeMarket, 0)
	if err != nil {
		a.logDispatch(ctx, opp, ticker, notional, false, err.Error())
		return fmt.Errorf("autopilot: order submission failed: %w", err)
	}

	if a.ledger != nil {
		entry := ledger.Entry{
			Timestamp: now,
			Action:    ledgerActionFor(side),
			Ticker:    ticker,
			Price:     order.AvgFillPrice,
			Quantity:  order.FilledQty,
			Reason:    fmt.Sprintf("autopilot: %s opportunity score=%.1f", opp.Module, opp.Score),
			Broker:    broker.Name(),
		}
		if err := a.ledger.Append(ctx, entry); err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("autopilot: order filled but ledger append failed")
		}
	}

	a.st.recordTrade(TradeRecord{
		Module:     opp.Module,
		Ticker:     ticker,
		AssetClass: assetClassFor(opp),
		Side:       actionFor(side),
		EntryPrice: order.AvgFillPrice,
		Quantity:   order.FilledQty,
		EnteredAt:  now,
	})
	a.st.markTradeID(tradeID)
	a.logDispatch(ctx, opp, ticker, notional, true, "")
	return nil
}

func (a *Autopilot) logDispatch(ctx context.Context, opp analyzer.Result, ticker string, notional float64, success bool, errMsg string) {
	if a.auditor == nil {
		return
	}
	event := &audit.Event{
		EventType: audit.EventTypeAutopilotDispatch,
		Severity:  audit.SeverityInfo,
		Resource:  ticker,
		Action:    fmt.Sprintf("autopilot dispatch: %s", opp.Module),
		Success:   success,
		ErrorMsg:  errMsg,
		Metadata: map[string]interface{}{
			"module":   opp.Module,
			"score":    opp.Score,
			"notional": notional,
			"paper":    a.settings.PaperMode,
		},
	}
	if !success {
		event.Severity = audit.SeverityError
	}
	if err := a.auditor.Log(ctx, event); err != nil {
		log.Warn().Err(err).Msg("autopilot: audit log failed")
	}
}

func tickerFor(r analyzer.Result) string {
	if t, ok := r.Extras["ticker"].(string); ok && t != "" {
		return t
	}
	return r.Signal
}

// assetClassFor reads the optional asset_class extra an Analyzer may set;
// analyzers that don't set one are assumed to trade equities, the most
// common case.
func assetClassFor(r analyzer.Result) tradesignal.AssetClass {
	if ac, ok := r.Extras["asset_class"].(tradesignal.AssetClass); ok && ac != "" {
		return ac
	}
	if s, ok := r.Extras["asset_class"].(string); ok && s != "" {
		return tradesignal.AssetClass(s)
	}
	return tradesignal.AssetEquity
}

// gateActionFor derives the Regime Gate's coarse Buy/Sell/Short action from
// an opportunity, preferring an explicit "action" extra over parsing
// Signal, which many analyzers instead use to carry a ticker.
func gateActionFor(r analyzer.Result) gate.Action {
	if v, ok := r.Extras["action"].(string); ok {
		switch tradesignal.Action(v) {
		case tradesignal.ActionSell:
			return gate.ActionSell
		case tradesignal.ActionShort:
			return gate.ActionShort
		}
		return gate.ActionBuy
	}
	switch r.Signal {
	case string(tradesignal.ActionSell):
		return gate.ActionSell
	case string(tradesignal.ActionShort):
		return gate.ActionShort
	}
	return gate.ActionBuy
}

func actionFor(side exchange.OrderSide) tradesignal.Action {
	if side == exchange.OrderSideSell {
		return tradesignal.ActionSell
	}
	return tradesignal.ActionBuy
}

func ledgerActionFor(side exchange.OrderSide) ledger.Action {
	if side == exchange.OrderSideSell {
		return ledger.ActionSell
	}
	return ledger.ActionBuy
}

// syntheticTradeID derives a deterministic, content-addressed id for one
// module/ticker/day combination, so a repeated opportunity within the same
// day never dispatches twice even if the position hasn't yet landed in
// executedTrades.
func syntheticTradeID(module, ticker string, at time.Time) string {
	key := module + "|" + ticker + "|" + at.UTC().Format("2006-01-02")
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(key)).String()
}
