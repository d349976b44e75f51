// Package gate implements the Regime Gate: a pure predicate that admits or
// rejects a trade decision based on the current macro regime, the action's
// confidence, and catalyst-pattern membership. It performs no I/O and holds
// no state — every call is a function of its arguments alone.
package gate

import "fmt"

// Action is the trade direction being gated.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionShort Action = "SHORT"
)

// Regime is the macro market state produced by the Regime Classifier.
type Regime string

const (
	RegimeGreen  Regime = "GREEN"
	RegimeYellow Regime = "YELLOW"
	RegimeRed    Regime = "RED"
)

// fallbackRegime is used whenever the caller passes an unrecognized or
// empty regime. GREEN is the permissive choice: an unknown regime must
// never be more restrictive than a known one.
const fallbackRegime = RegimeGreen

// catalystBonus is added to effective confidence for catalyst patterns in
// YELLOW or RED regimes.
const catalystBonus = 0.10

// catalystPatterns are the signal types eligible for the bonus. Trend-
// continuation patterns never qualify, in any regime.
var catalystPatterns = map[string]bool{
	"EpisodicPivot": true,
	"InsideBar212":  true,
}

// thresholds[regime][action] is the minimum effective confidence required
// for the action to pass in that regime.
var thresholds = map[Regime]map[Action]float64{
	RegimeGreen:  {ActionBuy: 0.55, ActionSell: 0.55, ActionShort: 0.55},
	RegimeYellow: {ActionBuy: 0.75, ActionSell: 0.50, ActionShort: 0.50},
	RegimeRed:    {ActionBuy: 0.85, ActionSell: 0.45, ActionShort: 0.45},
}

// Evaluate decides whether action at confidence is admitted under regime.
// signalType is the pattern or strategy name that produced the decision;
// it is only consulted for the catalyst bonus and may be empty.
//
// blocked is true iff effective confidence is strictly below the regime's
// threshold for action; a signal whose confidence exactly equals the
// threshold passes.
func Evaluate(action Action, confidence float64, regime Regime, signalType string) (blocked bool, effective float64, reason string) {
	r := regime
	if _, known := thresholds[r]; !known {
		r = fallbackRegime
	}

	effective = confidence
	if (r == RegimeYellow || r == RegimeRed) && catalystPatterns[signalType] {
		effective += catalystBonus
		if effective > 1.0 {
			effective = 1.0
		}
	}

	threshold := thresholds[r][action]
	blocked = effective < threshold

	if blocked {
		reason = fmt.Sprintf("regime %s requires confidence >= %.2f for %s, got %.2f", r, threshold, action, effective)
	} else {
		reason = fmt.Sprintf("regime %s: confidence %.2f clears %.2f threshold for %s", r, effective, threshold, action)
	}

	return blocked, effective, reason
}
