package bus

// Namespaced intel keys published and consumed across the trading suite.
// Every reader/writer references these constants rather than inlining the
// literal string, so the two sides can never silently drift apart.
const (
	KeyBTCSentiment        = "intel:btc_sentiment"
	KeyBTCVolumeSpike      = "intel:btc_volume_spike"
	KeyFedBias             = "intel:fed_bias"
	KeySocialScore         = "intel:social_score"
	KeyWeatherEdge         = "intel:weather_edge"
	KeyVIXLevel            = "intel:vix_level"
	KeySPYTrend            = "intel:spy_trend"
	KeyPortfolioHeat       = "intel:portfolio_heat"
	KeyPlaybookSnapshot    = "intel:playbook_snapshot"
	KeyGeopoliticalRisk    = "intel:geopolitical_risk"
	KeyConflictEvents      = "intel:conflict_events"
	KeyRegionalRisk        = "intel:regional_risk"
	KeyFearGreed           = "macro:fear_greed"
	Key10YYield            = "macro:10y_yield"
	KeyStrategyMode        = "strategy_mode"
	KeyKalshiOI            = "intel:kalshi_oi"
	KeyKalshiLiquiditySpike = "intel:kalshi_liquidity_spike"
	KeyKalshiOrderbook     = "intel:kalshi_orderbook_summary"

	// ExecutedTrades and Blacklist are the Autopilot's own persisted maps,
	// restored from the bus on restart but never mutated by other
	// components.
	KeyExecutedTrades = "autopilot:executed_trades"
	KeyBlacklist      = "autopilot:blacklist"
)

// ChannelTradeSignals carries serialized Trade Signals from the pipeline to
// the Signal Router.
const ChannelTradeSignals = "trade_signals"

// ChannelEmergencyStop carries the CANCEL_ALL broadcast. Any publisher may
// send it (kill switch, daily-loss guard, operator panic button).
const ChannelEmergencyStop = "emergency_stop"

// CancelAllPayload is the sole payload ever published on ChannelEmergencyStop.
const CancelAllPayload = "CANCEL_ALL"
