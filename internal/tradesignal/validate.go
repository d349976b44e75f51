package tradesignal

import (
	"errors"
	"fmt"

	"github.com/meridianquant/orbitron/internal/validation"
)

// Validate enforces the Trade Signal contract at the pipeline boundary.
// A signal that fails validation is dropped by the Signal Router before it
// ever reaches a Broker — it is never dispatched, never retried.
func (s Signal) Validate() error {
	v := validation.NewValidator()

	v.Required("target_brokerage", s.TargetBrokerage)
	v.Required("ticker_or_event", s.TickerOrEvent)
	v.Required("agent_reasoning", s.AgentReasoning)

	switch s.TargetSystem {
	case TargetEquityEngine, TargetPredictionEngine:
	default:
		v.AddError("target_system", "must be equity_engine or prediction_engine")
	}

	switch s.AssetClass {
	case AssetEquity, AssetOption, AssetCrypto, AssetPredictionMarket, AssetSportsBet:
	default:
		v.AddError("asset_class", "must be one of equity, option, crypto, prediction_market, sports_bet")
	}

	switch s.Action {
	case ActionBuy, ActionSell, ActionHold, ActionShort, ActionCover:
	default:
		v.AddError("action", "must be one of buy, sell, hold, short, cover")
	}

	if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
		v.AddError("confidence_score", "must be in [0,1]")
	}

	if s.ProposedAllocationPct < 0 || s.ProposedAllocationPct > maxProposedAllocationPct {
		v.AddError("proposed_allocation_pct", fmt.Sprintf("must be in [0,%.2f]", maxProposedAllocationPct))
	}

	if s.AssetClass == AssetOption && s.StrikePrice == nil {
		v.AddError("strike_price", "is required for option asset_class")
	}
	if (s.AssetClass == AssetOption || s.AssetClass == AssetPredictionMarket) && s.ExpirationDate == nil {
		v.AddError("expiration_date", "is required for option/prediction_market asset_class")
	}

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// FirstSentinel returns the package sentinel error matching the first
// validation failure in err, so callers (the Signal Router's rejection
// metrics and audit trail) can branch with errors.Is instead of matching
// on field-name strings. err must be the result of Signal.Validate.
func FirstSentinel(err error) error {
	var verrs validation.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return sentinelFor(verrs[0].Field)
}

// sentinelFor maps a validation.ValidationErrors field name to the package's
// sentinel error, so callers can branch with errors.Is without string
// matching on field names.
func sentinelFor(field string) error {
	switch field {
	case "target_system":
		return ErrInvalidTargetSystem
	case "target_brokerage":
		return ErrMissingTargetBrokerage
	case "asset_class":
		return ErrInvalidAssetClass
	case "ticker_or_event":
		return ErrMissingTicker
	case "action":
		return ErrInvalidAction
	case "confidence_score":
		return ErrInvalidConfidence
	case "proposed_allocation_pct":
		return ErrInvalidAllocation
	case "strike_price":
		return ErrMissingStrike
	case "expiration_date":
		return ErrMissingExpiration
	default:
		return errors.New("tradesignal: " + field + " is invalid")
	}
}
