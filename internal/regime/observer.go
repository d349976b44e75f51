package regime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianquant/orbitron/internal/archive"
	"github.com/meridianquant/orbitron/internal/audit"
	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/catalog"
	"github.com/meridianquant/orbitron/internal/killswitch"
	"github.com/meridianquant/orbitron/internal/risk"
)

// ObserverInterval is the Playbook Observer's fixed polling cadence.
const ObserverInterval = 300 * time.Second

// PriceSource supplies the daily closes and OHLCV history the Observer
// needs each cycle. It is intentionally narrow — a harvester, a cache, or
// a test double can all satisfy it without pulling in the rest of the
// market-data stack.
type PriceSource interface {
	DailyCloses(ctx context.Context, symbol string, lookback int) ([]float64, error)
	OHLCV(ctx context.Context, symbol string, lookback int) ([]catalog.Bar, error)
}

// Snapshot is the full payload recorded once per Observer cycle: never
// consumed by the router, only ever written out.
type Snapshot struct {
	Timestamp       time.Time                  `json:"timestamp"`
	Regime          State                      `json:"regime"`
	Signals         map[string][]catalog.Signal `json:"signals"`
	CVaR99          float64                     `json:"cvar_99"`
	Drawdown        float64                     `json:"drawdown"`
	KillSwitchEvent string                      `json:"kill_switch_event,omitempty"`
}

// Observer runs the Playbook loop: classify the macro regime, scan the
// watchlist for catalog patterns, compute a risk snapshot, and run every
// KillSwitch check. It never places an order and holds no reference to a
// Broker or Router — that structural absence is the guarantee that this
// component cannot accidentally become a second execution path.
type Observer struct {
	prices    PriceSource
	watchlist []string

	kill     *killswitch.KillSwitch
	drawdown *risk.DrawdownMonitor
	archiver *archive.Archive
	auditor  *audit.Logger
	pub      bus.Publisher

	lookback int

	// recentReturns feeds CVaR99 each cycle; callers append realized
	// trade returns to it out of band (e.g. from Ledger replay) between
	// Observer cycles.
	recentReturns func() []float64
	equity        func() float64
}

// NewObserver constructs an Observer. recentReturns and equity are callback
// hooks rather than stored slices/values so the Observer always reads the
// latest Ledger-derived state without the caller having to push updates
// into it explicitly.
func NewObserver(
	prices PriceSource,
	watchlist []string,
	kill *killswitch.KillSwitch,
	drawdown *risk.DrawdownMonitor,
	archiver *archive.Archive,
	auditor *audit.Logger,
	pub bus.Publisher,
	recentReturns func() []float64,
	equity func() float64,
) *Observer {
	return &Observer{
		prices:        prices,
		watchlist:     watchlist,
		kill:          kill,
		drawdown:      drawdown,
		archiver:      archiver,
		auditor:       auditor,
		pub:           pub,
		lookback:      252,
		recentReturns: recentReturns,
		equity:        equity,
	}
}

// Run blocks, executing RunOnce every ObserverInterval until ctx is
// canceled. The first cycle runs immediately rather than waiting out the
// first interval.
func (o *Observer) Run(ctx context.Context) {
	o.runAndLog(ctx)

	ticker := time.NewTicker(ObserverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runAndLog(ctx)
		}
	}
}

func (o *Observer) runAndLog(ctx context.Context) {
	if _, err := o.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("playbook observer: cycle failed")
	}
}

// RunOnce executes a single Observer cycle and returns the snapshot it
// recorded.
func (o *Observer) RunOnce(ctx context.Context) (Snapshot, error) {
	spyCloses, err := o.prices.DailyCloses(ctx, "SPY", minBars+10)
	if err != nil {
		return Snapshot{}, err
	}

	jnkReturn, tltReturn, haveCredit := o.creditReturns(ctx)
	state := Classify(spyCloses, jnkReturn, tltReturn, haveCredit)

	signals := make(map[string][]catalog.Signal, len(o.watchlist))
	for _, symbol := range o.watchlist {
		bars, err := o.prices.OHLCV(ctx, symbol, o.lookback)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("playbook observer: failed to load OHLCV, skipping symbol")
			continue
		}
		if sigs := catalog.ScanSymbol(symbol, bars); len(sigs) > 0 {
			signals[symbol] = sigs
		}
	}

	var returns []float64
	if o.recentReturns != nil {
		returns = o.recentReturns()
	}
	cvar := risk.CVaR99(returns)

	var nav float64
	if o.equity != nil {
		nav = o.equity()
	}
	drawdown, drawdownHaltReason := o.drawdown.Update("portfolio", nav)

	killReason := ""
	if o.kill != nil {
		killReason = o.kill.RunAllChecks(nav, 0, 0, 0)
		if killReason == "" {
			killReason = drawdownHaltReason
		}
		if killReason != "" {
			o.kill.Trigger(ctx, killReason)
		}
	}

	snapshot := Snapshot{
		Timestamp:       time.Now(),
		Regime:          state,
		Signals:         signals,
		CVaR99:          cvar,
		Drawdown:        drawdown,
		KillSwitchEvent: killReason,
	}

	o.record(ctx, snapshot)
	return snapshot, nil
}

// creditReturns is a placeholder hook point: callers that have JNK/TLT
// history wire a richer PriceSource and override this via embedding. The
// base Observer treats credit data as unavailable, which Classify treats
// as "no divergence check" rather than a hard failure.
func (o *Observer) creditReturns(ctx context.Context) (jnk5d, tlt5d float64, have bool) {
	return 0, 0, false
}

func (o *Observer) record(ctx context.Context, snapshot Snapshot) {
	if o.archiver != nil {
		if err := o.archiver.Write(snapshot); err != nil {
			log.Warn().Err(err).Msg("playbook observer: archive write failed")
		}
	}

	if o.pub != nil {
		if err := o.pub.Publish(ctx, bus.KeyPlaybookSnapshot, snapshot, "playbook_observer", 1.0); err != nil {
			log.Warn().Err(err).Msg("playbook observer: bus publish failed")
		}
	}

	if o.auditor != nil {
		event := &audit.Event{
			EventType: audit.EventTypePlaybookSnapshot,
			Severity:  audit.SeverityInfo,
			Action:    "playbook observer cycle recorded",
			Success:   true,
			Metadata: map[string]interface{}{
				"regime":    snapshot.Regime.Regime,
				"cvar_99":   snapshot.CVaR99,
				"drawdown":  snapshot.Drawdown,
				"signals":   len(snapshot.Signals),
			},
		}
		if snapshot.KillSwitchEvent != "" {
			event.EventType = audit.EventTypeKillSwitchTriggered
			event.Severity = audit.SeverityCritical
			event.ErrorMsg = snapshot.KillSwitchEvent
		}
		if err := o.auditor.Log(ctx, event); err != nil {
			log.Warn().Err(err).Msg("playbook observer: audit log failed")
		}
	}
}
