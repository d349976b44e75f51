package tradesignal

import "errors"

var (
	ErrInvalidTargetSystem    = errors.New("tradesignal: target_system must be equity_engine or prediction_engine")
	ErrMissingTargetBrokerage = errors.New("tradesignal: target_brokerage is required")
	ErrInvalidAssetClass      = errors.New("tradesignal: asset_class is invalid")
	ErrMissingTicker          = errors.New("tradesignal: ticker_or_event is required")
	ErrInvalidAction          = errors.New("tradesignal: action is invalid")
	ErrInvalidConfidence      = errors.New("tradesignal: confidence_score must be in [0,1]")
	ErrInvalidAllocation      = errors.New("tradesignal: proposed_allocation_pct must be in [0,0.10]")
	ErrMissingStrike          = errors.New("tradesignal: strike_price is required for option asset_class")
	ErrMissingExpiration      = errors.New("tradesignal: expiration_date is required for option/prediction_market asset_class")
)
