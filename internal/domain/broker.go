// Package domain defines the core value types and collaborator interfaces for
// the arbitrage engine: quotes, orders, order pairs, broker positions, spread
// analysis results, and the adapter/store contracts implemented elsewhere.
package domain

// Broker identifies a trading venue by its configured name.
type Broker = string

// QuoteSide is one side of an order book.
type QuoteSide string

const (
	Ask QuoteSide = "Ask"
	Bid QuoteSide = "Bid"
)

// Quote is one side of a broker's order book at a price/volume. Quotes are
// produced fresh each aggregation cycle and never mutated.
type Quote struct {
	Broker Broker    `json:"broker"`
	Side   QuoteSide `json:"side"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// BrokerPosition is the net exposure of one broker together with the size
// still allowed in each direction. AllowedLongSize and AllowedShortSize are
// clamped at zero; LongAllowed/ShortAllowed additionally require the broker
// to be currently stable.
type BrokerPosition struct {
	Broker           Broker  `json:"broker"`
	BaseCcyPosition  float64 `json:"baseCcyPosition"`
	AllowedLongSize  float64 `json:"allowedLongSize"`
	AllowedShortSize float64 `json:"allowedShortSize"`
	LongAllowed      bool    `json:"longAllowed"`
	ShortAllowed     bool    `json:"shortAllowed"`
}
