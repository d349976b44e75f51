// Package killswitch implements the system-health circuit breaker: rolling
// PnL-velocity and order-rate windows, latency and price-deviation checks,
// and the idempotent master trigger that broadcasts CANCEL_ALL.
package killswitch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianquant/orbitron/internal/alerts"
	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/orchestrator"
)

// Default thresholds, transcribed from the Cemini kill switch.
const (
	PnLVelocityWindow    = 60 * time.Second
	PnLVelocityThreshold = -0.01 // -1% NAV/min
	OrderRateWindow      = 10 * time.Second
	OrderRateMax         = 100
	LatencyThresholdMS   = 500.0
	PriceDeviationMax    = 0.02
)

type pnlSample struct {
	at    time.Time
	value float64
}

// KillSwitch monitors system health and triggers a controlled halt on
// anomaly. All Trigger/HaltStrategy/ResumeStrategy calls are safe for
// concurrent use.
type KillSwitch struct {
	pnlVelThreshold float64
	orderRateMax    int
	latencyMax      float64
	priceDevMax     float64

	mu       sync.Mutex
	pnlLog   []pnlSample
	orderLog []time.Time

	triggered     atomic.Bool
	triggerReason atomic.Value // string

	quarantineMu sync.Mutex
	quarantined  map[string]bool

	bus    *orchestrator.MessageBus
	alerts *alerts.Manager
}

// New constructs a KillSwitch broadcasting over mb's emergency_stop topic.
// mb may be nil, in which case Trigger still sets the internal latch but
// performs no broadcast — useful in tests.
func New(mb *orchestrator.MessageBus) *KillSwitch {
	return &KillSwitch{
		pnlVelThreshold: PnLVelocityThreshold,
		orderRateMax:    OrderRateMax,
		latencyMax:      LatencyThresholdMS,
		priceDevMax:     PriceDeviationMax,
		quarantined:     make(map[string]bool),
		bus:             mb,
	}
}

// SetAlerter attaches the operator-alert channel Trigger notifies on a
// master halt. Optional — a KillSwitch with no alerter still latches and
// broadcasts CANCEL_ALL, it just doesn't page anyone.
func (k *KillSwitch) SetAlerter(m *alerts.Manager) {
	k.alerts = m
}

// RecordPnL appends a PnL snapshot (NAV fraction or dollar value,
// consistent with the nav argument later passed to CheckPnLVelocity) to the
// rolling window.
func (k *KillSwitch) RecordPnL(value float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pnlLog = append(k.pnlLog, pnlSample{at: time.Now(), value: value})
	k.pnlLog = trimPnL(k.pnlLog, PnLVelocityWindow)
}

// RecordOrderMessage records that one order message was sent/received now.
func (k *KillSwitch) RecordOrderMessage() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.orderLog = append(k.orderLog, time.Now())
	k.orderLog = trimOrders(k.orderLog, OrderRateWindow)
}

// CheckPnLVelocity returns a non-empty halt reason if the PnL rate over the
// trailing window breaches the threshold.
func (k *KillSwitch) CheckPnLVelocity(nav float64) string {
	if nav == 0 {
		nav = 1.0
	}

	k.mu.Lock()
	window := trimPnL(k.pnlLog, PnLVelocityWindow)
	k.mu.Unlock()

	if len(window) < 2 {
		return ""
	}

	oldest, newest := window[0], window[len(window)-1]
	elapsed := newest.at.Sub(oldest.at).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}

	velocityPerMin := ((newest.value - oldest.value) / nav) / (elapsed / 60.0)
	if velocityPerMin < k.pnlVelThreshold {
		return fmt.Sprintf("PnL velocity %.4f NAV/min < threshold %.4f", velocityPerMin, k.pnlVelThreshold)
	}
	return ""
}

// CheckOrderRate returns a non-empty halt reason if the number of order
// messages within the trailing window exceeds the configured max.
func (k *KillSwitch) CheckOrderRate() string {
	k.mu.Lock()
	window := trimOrders(k.orderLog, OrderRateWindow)
	k.mu.Unlock()

	if len(window) > k.orderRateMax {
		return fmt.Sprintf("order rate anomaly: %d messages in %.0fs (limit=%d)", len(window), OrderRateWindow.Seconds(), k.orderRateMax)
	}
	return ""
}

// CheckConnectivity returns a non-empty halt reason if latencyMS exceeds
// the configured threshold.
func (k *KillSwitch) CheckConnectivity(latencyMS float64) string {
	if latencyMS > k.latencyMax {
		return fmt.Sprintf("API latency %.1fms > threshold %.0fms", latencyMS, k.latencyMax)
	}
	return ""
}

// CheckPriceDeviation returns a non-empty halt reason if execPrice departs
// from fairValue by more than the configured fraction.
func (k *KillSwitch) CheckPriceDeviation(execPrice, fairValue float64) string {
	if fairValue <= 0 {
		return ""
	}
	deviation := (execPrice - fairValue) / fairValue
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > k.priceDevMax {
		return fmt.Sprintf("price deviation %.2f%% (exec=%.4f fair=%.4f) > max %.2f%%", deviation*100, execPrice, fairValue, k.priceDevMax*100)
	}
	return ""
}

// RunAllChecks runs every monitor and returns the first non-empty halt
// reason, or "" if the system is healthy. Does not trigger automatically —
// callers decide whether a reason warrants Trigger.
func (k *KillSwitch) RunAllChecks(nav, latencyMS, execPrice, fairValue float64) string {
	if r := k.CheckPnLVelocity(nav); r != "" {
		return r
	}
	if r := k.CheckOrderRate(); r != "" {
		return r
	}
	if r := k.CheckConnectivity(latencyMS); r != "" {
		return r
	}
	if r := k.CheckPriceDeviation(execPrice, fairValue); r != "" {
		return r
	}
	return ""
}

// Trigger activates the master kill switch. It is idempotent: calling it
// twice broadcasts emergency_stop exactly once.
func (k *KillSwitch) Trigger(ctx context.Context, reason string) {
	if !k.triggered.CompareAndSwap(false, true) {
		return // already fired
	}
	k.triggerReason.Store(reason)
	log.Error().Str("reason", reason).Msg("killswitch: MASTER KILL TRIGGERED")

	if k.alerts != nil {
		if err := k.alerts.Send(ctx, alerts.Alert{
			Title:    "Kill switch triggered",
			Message:  reason,
			Severity: alerts.SeverityCritical,
		}); err != nil {
			log.Error().Err(err).Msg("killswitch: failed to send operator alert")
		}
	}

	if k.bus == nil {
		return
	}

	msg, err := orchestrator.NewAgentMessage("killswitch", "*", bus.ChannelEmergencyStop, bus.CancelAllPayload)
	if err != nil {
		log.Error().Err(err).Msg("killswitch: failed to build emergency_stop message")
		return
	}
	if err := k.bus.Broadcast(ctx, msg); err != nil {
		log.Error().Err(err).Msg("killswitch: failed to broadcast emergency_stop")
	}
}

// Triggered reports whether the master kill switch has fired.
func (k *KillSwitch) Triggered() bool {
	return k.triggered.Load()
}

// Reason returns the reason passed to the winning Trigger call, or "" if
// never triggered.
func (k *KillSwitch) Reason() string {
	if r, ok := k.triggerReason.Load().(string); ok {
		return r
	}
	return ""
}

// Reset clears the triggered latch, allowing a subsequent Trigger to
// broadcast again. Administrative action only.
func (k *KillSwitch) Reset() {
	k.triggered.Store(false)
	k.triggerReason.Store("")
}

// HaltStrategy quarantines strategy without a full system halt.
func (k *KillSwitch) HaltStrategy(strategy, reason string) {
	k.quarantineMu.Lock()
	k.quarantined[strategy] = true
	k.quarantineMu.Unlock()
	log.Warn().Str("strategy", strategy).Str("reason", reason).Msg("killswitch: strategy halted")
}

// IsStrategyHalted reports whether strategy is currently quarantined.
func (k *KillSwitch) IsStrategyHalted(strategy string) bool {
	k.quarantineMu.Lock()
	defer k.quarantineMu.Unlock()
	return k.quarantined[strategy]
}

// ResumeStrategy manually re-arms strategy after review.
func (k *KillSwitch) ResumeStrategy(strategy string) {
	k.quarantineMu.Lock()
	delete(k.quarantined, strategy)
	k.quarantineMu.Unlock()
	log.Info().Str("strategy", strategy).Msg("killswitch: strategy manually resumed")
}

func trimPnL(samples []pnlSample, window time.Duration) []pnlSample {
	cutoff := time.Now().Add(-window)
	i := 0
	for i < len(samples) && samples[i].at.Before(cutoff) {
		i++
	}
	return samples[i:]
}

func trimOrders(ts []time.Time, window time.Duration) []time.Time {
	cutoff := time.Now().Add(-window)
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
