// Package tradesignal defines the typed Trade Signal contract produced by
// the analyst pipeline and consumed by the Signal Router, plus its
// boundary validation.
package tradesignal

import "time"

// TargetSystem selects which execution venue family a signal is routed to.
type TargetSystem string

const (
	TargetEquityEngine     TargetSystem = "equity_engine"
	TargetPredictionEngine TargetSystem = "prediction_engine"
)

// AssetClass classifies the instrument a signal trades.
type AssetClass string

const (
	AssetEquity           AssetClass = "equity"
	AssetOption           AssetClass = "option"
	AssetCrypto           AssetClass = "crypto"
	AssetPredictionMarket AssetClass = "prediction_market"
	AssetSportsBet        AssetClass = "sports_bet"
)

// Action is the proposed trade direction.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionHold  Action = "hold"
	ActionShort Action = "short"
	ActionCover Action = "cover"
)

const maxProposedAllocationPct = 0.10

// Signal is the typed output of the analyst pipeline.
type Signal struct {
	TargetSystem          TargetSystem `json:"target_system"`
	TargetBrokerage       string       `json:"target_brokerage"`
	AssetClass            AssetClass   `json:"asset_class"`
	TickerOrEvent         string       `json:"ticker_or_event"`
	Action                Action       `json:"action"`
	ConfidenceScore       float64      `json:"confidence_score"`
	ProposedAllocationPct float64      `json:"proposed_allocation_pct"`
	AgentReasoning        string       `json:"agent_reasoning"`

	// Conditional fields.
	StrikePrice    *float64   `json:"strike_price,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}
