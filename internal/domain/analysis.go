package domain

import "time"

// SpreadAnalysisResult is the outcome of one spread analysis: the best
// actionable quote pair and the volume/profit the engine should target.
// InvertedSpread = bid price - ask price; positive means the profitable
// direction exists (buy at the ask, sell at the bid).
type SpreadAnalysisResult struct {
	Bid                          Quote   `json:"bid"`
	Ask                          Quote   `json:"ask"`
	InvertedSpread               float64 `json:"invertedSpread"`
	AvailableVolume              float64 `json:"availableVolume"`
	TargetVolume                 float64 `json:"targetVolume"`
	TargetProfit                 float64 `json:"targetProfit"`
	ProfitPercentAgainstNotional float64 `json:"profitPercentAgainstNotional"`
}

// BrokerSpread is one broker's own best ask/bid and internal spread,
// reported in spread statistics only.
type BrokerSpread struct {
	Ask    *Quote   `json:"ask"`
	Bid    *Quote   `json:"bid"`
	Spread *float64 `json:"spread"`
}

// SpreadStat is a telemetry-only snapshot of the market: per-broker best
// quotes plus best-case and worst-case estimates across brokers. It never
// feeds trading decisions.
type SpreadStat struct {
	Timestamp time.Time               `json:"timestamp"`
	ByBroker  map[Broker]BrokerSpread `json:"byBroker"`
	BestCase  SpreadAnalysisResult    `json:"bestCase"`
	WorstCase SpreadAnalysisResult    `json:"worstCase"`
}

// LimitCheckResult is the outcome of evaluating a limit policy against a
// spread analysis result. Reason is a short machine-usable tag; Message is
// for operators.
type LimitCheckResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
