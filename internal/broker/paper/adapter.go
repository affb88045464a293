// Package paper implements a simulated broker adapter for demo mode. It
// serves a random-walk order book and fills orders instantly against it, so
// the whole engine can run end to end without venue credentials.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nh-chitose/r2-re/internal/domain"
)

// bookDepth is the number of price levels generated per book side.
const bookDepth = 3

// Adapter is a simulated venue. Each instance keeps its own mid price and
// basis offset so two adapters regularly produce crossed books between them.
type Adapter struct {
	name     domain.Broker
	baseCcy  string
	mid      float64
	basis    float64
	tickSize float64

	mu       sync.Mutex
	rng      *rand.Rand
	position float64
	orders   map[string]*domain.Order
}

// New creates a paper adapter for the named venue. mid is the starting mid
// price and basis a constant offset applied to every quote, letting callers
// bias one venue above the other.
func New(name domain.Broker, baseCcy string, mid, basis float64) *Adapter {
	return &Adapter{
		name:     name,
		baseCcy:  baseCcy,
		mid:      mid,
		basis:    basis,
		tickSize: mid / 10000,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		orders:   make(map[string]*domain.Order),
	}
}

// Broker returns the venue name this adapter serves.
func (a *Adapter) Broker() domain.Broker {
	return a.name
}

// FetchQuotes generates a fresh book around the drifting mid price.
func (a *Adapter) FetchQuotes(_ context.Context) ([]domain.Quote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Random walk, clamped to stay positive.
	a.mid += (a.rng.Float64() - 0.5) * 20 * a.tickSize
	if a.mid < a.tickSize {
		a.mid = a.tickSize
	}
	center := a.mid + a.basis
	halfSpread := float64(1+a.rng.Intn(3)) * a.tickSize

	quotes := make([]domain.Quote, 0, bookDepth*2)
	for i := 0; i < bookDepth; i++ {
		level := float64(i) * a.tickSize
		quotes = append(quotes,
			domain.Quote{
				Broker: a.name,
				Side:   domain.Ask,
				Price:  center + halfSpread + level,
				Volume: 0.5 + a.rng.Float64()*2,
			},
			domain.Quote{
				Broker: a.name,
				Side:   domain.Bid,
				Price:  center - halfSpread - level,
				Volume: 0.5 + a.rng.Float64()*2,
			},
		)
	}
	return quotes, nil
}

// Send accepts the order. Fills are applied lazily on Refresh so the trading
// loop exercises its polling path.
func (a *Adapter) Send(_ context.Context, order *domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	order.BrokerOrderID = uuid.New().String()
	order.SentTime = time.Now()
	order.UpdateStatus(domain.OrderStatusOpen)
	a.orders[order.BrokerOrderID] = order
	return nil
}

// Cancel marks the order canceled.
func (a *Adapter) Cancel(_ context.Context, order *domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.orders[order.BrokerOrderID]; !ok {
		return fmt.Errorf("paper: unknown order %s", order.BrokerOrderID)
	}
	delete(a.orders, order.BrokerOrderID)
	order.UpdateStatus(domain.OrderStatusCanceled)
	return nil
}

// Refresh fills the order completely at its limit price and updates the
// simulated position.
func (a *Adapter) Refresh(_ context.Context, order *domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.orders[order.BrokerOrderID]; !ok {
		return fmt.Errorf("paper: unknown order %s", order.BrokerOrderID)
	}
	if order.Filled() {
		return nil
	}
	fill := order.PendingSize()
	order.FilledSize = order.Size
	order.Executions = append(order.Executions, domain.Execution{
		Broker:        a.name,
		BrokerOrderID: order.BrokerOrderID,
		Side:          order.Side,
		Size:          fill,
		Price:         order.Price,
		ExecTime:      time.Now(),
	})
	order.UpdateStatus(domain.OrderStatusExecuted)

	if order.Side == domain.OrderSideBuy {
		a.position += fill
	} else {
		a.position -= fill
	}
	delete(a.orders, order.BrokerOrderID)
	return nil
}

// GetPositions returns the simulated net position in the base currency.
func (a *Adapter) GetPositions(_ context.Context) (map[string]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]float64{a.baseCcy: a.position}, nil
}

// Compile-time interface check.
var _ domain.BrokerAdapter = (*Adapter)(nil)
