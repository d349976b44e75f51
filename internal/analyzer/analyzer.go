// Package analyzer defines the generic contract every opportunity source
// implements for the Autopilot loop. Where the teacher's MCP-based agents
// wrap a scan in a try/except that collapses to an error string, an
// Analyzer returns one of three explicit result variants instead — the
// loop never has to distinguish "no signal this cycle" from "the analyzer
// broke" by parsing a message.
package analyzer

import "context"

// Status is the outcome of one Analyze call.
type Status string

const (
	// Success means Score/Odds are populated and the result is eligible
	// to become an opportunity, subject to the module's own threshold.
	Success Status = "success"
	// NoSignal means the analyzer ran cleanly but found nothing worth
	// acting on this cycle. Never logged as an error.
	NoSignal Status = "no_signal"
	// Error means the analyzer itself failed (timeout, bad response,
	// panic recovered by the runner). Logged, never ranked.
	Error Status = "error"
)

// Result is the uniform shape every Analyzer returns. Only Success results
// carry a meaningful Score/Odds; the loop checks Status before reading
// them.
type Result struct {
	Status Status

	// Module names the analyzer for the opportunity list and the audit
	// trail, e.g. "btc_sentiment", "weather_edge", "technical_swarm".
	Module string

	// Signal is the human-readable trade idea, e.g. "BUY" or a ticker.
	Signal string

	// Score is in [0,100]; higher is more confident. Only meaningful
	// when Status == Success.
	Score float64

	// Odds is the decimal payout multiple Kelly sizing uses. Analyzers
	// over continuous equities without a discrete payout should report
	// a neutral 2.0 (even-money) rather than leaving it zero.
	Odds float64

	// Extras carries analyzer-specific detail (ticker, entry price,
	// pattern name) through to the Trade Signal's reasoning field
	// without the opportunity list needing to know its shape.
	Extras map[string]interface{}

	// Reason explains a NoSignal or Error outcome for logging.
	Reason string
}

// SuccessResult builds a Success result.
func SuccessResult(module, signal string, score, odds float64, extras map[string]interface{}) Result {
	return Result{Status: Success, Module: module, Signal: signal, Score: score, Odds: odds, Extras: extras}
}

// NoSignalResult builds a NoSignal result for the given module.
func NoSignalResult(module, reason string) Result {
	return Result{Status: NoSignal, Module: module, Reason: reason}
}

// ErrorResult builds an Error result for the given module.
func ErrorResult(module string, err error) Result {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Result{Status: Error, Module: module, Reason: reason}
}

// Analyzer is one registered opportunity source in the Autopilot loop.
// Implementations must never let a panic escape Analyze — the loop's
// runner recovers defensively, but a well-behaved Analyzer reports Error
// itself so Reason carries useful detail.
type Analyzer interface {
	// Module is this analyzer's stable name, used in the opportunity
	// list, the audit trail, and the blacklist/executed-trades maps.
	Module() string

	// Threshold is the minimum Score (in [0,100]) this analyzer's result
	// must clear to become an opportunity.
	Threshold() float64

	// Analyze runs one scan. ctx carries the per-cycle timeout; an
	// Analyzer that exceeds it must return Error, never block the loop.
	Analyze(ctx context.Context) Result
}
