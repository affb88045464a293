package domain

import "context"

// BrokerAdapter is the per-venue client contract. Implementations translate
// these generic operations into venue-specific REST/websocket calls; every
// method may fail with a network or protocol error at any time.
type BrokerAdapter interface {
	// Broker returns the venue name this adapter serves.
	Broker() Broker
	// Send submits the order and fills in BrokerOrderID, SentTime and Status.
	Send(ctx context.Context, order *Order) error
	// Cancel cancels the order at the venue.
	Cancel(ctx context.Context, order *Order) error
	// Refresh updates FilledSize, Status and Executions from the venue.
	Refresh(ctx context.Context, order *Order) error
	// FetchQuotes returns the venue's current order book quotes.
	FetchQuotes(ctx context.Context) ([]Quote, error)
	// GetPositions returns net positions keyed by currency.
	GetPositions(ctx context.Context) (map[string]float64, error)
}
