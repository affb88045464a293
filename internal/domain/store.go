package domain

import (
	"context"
	"time"
)

// KeyedPair is an entry returned by ActivePairStore.GetAll.
type KeyedPair struct {
	Key   string
	Value OrderPair
}

// ActivePairStore is the durable registry of currently open arbitrage pairs.
// Keys are opaque identifiers assigned at put time; GetAll returns entries in
// insertion order. Implementations notify a registered observer on every
// mutating call; the notification is a side channel for dashboards and does
// not affect trading correctness.
type ActivePairStore interface {
	Get(ctx context.Context, key string) (OrderPair, error)
	GetAll(ctx context.Context) ([]KeyedPair, error)
	Put(ctx context.Context, pair OrderPair) (string, error)
	Del(ctx context.Context, key string) error
	DelAll(ctx context.Context) error
	// OnChange registers a callback invoked after every mutation.
	OnChange(fn func())
}

// TradeRecord is one completed trade attempt written to the journal: the
// original legs plus any recovery orders, with realized profit.
type TradeRecord struct {
	ID         string
	Symbol     string
	Orders     []*Order
	Profit     float64
	Commission float64
	Closable   bool
	CreatedAt  time.Time
}

// TradeJournal persists completed trades for later analysis.
type TradeJournal interface {
	Record(ctx context.Context, rec TradeRecord) error
}

// EventBus publishes engine events to external observers (dashboard,
// analytics, notifications). Delivery is best effort.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BusMessage is one event received from a bus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}

// EventSubscriber is the consuming side of the event bus. The returned
// channel closes when the context is cancelled.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}

// BlobWriter stores a telemetry object under a key in durable blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
