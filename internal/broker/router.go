package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
)

// AdapterRouter is a uniform façade over the configured broker adapters. It
// turns adapter failures into stability signals: send, cancel, refresh and
// position fetches decrement the broker's score and rethrow so the caller can
// decide whether to abort, while quote fetches swallow the error and return an
// empty list to keep the aggregation loop alive.
type AdapterRouter struct {
	adapters  map[domain.Broker]domain.BrokerAdapter
	stability *StabilityTracker
	reporter  *event.Reporter
	logger    *slog.Logger
}

// NewAdapterRouter creates a router over the given adapters.
func NewAdapterRouter(
	adapters []domain.BrokerAdapter,
	stability *StabilityTracker,
	reporter *event.Reporter,
	logger *slog.Logger,
) *AdapterRouter {
	m := make(map[domain.Broker]domain.BrokerAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Broker()] = a
	}
	return &AdapterRouter{
		adapters:  m,
		stability: stability,
		reporter:  reporter,
		logger:    logger.With(slog.String("component", "adapter_router")),
	}
}

func (r *AdapterRouter) adapter(broker domain.Broker) (domain.BrokerAdapter, error) {
	a, ok := r.adapters[broker]
	if !ok {
		return nil, fmt.Errorf("broker: no adapter registered for %q", broker)
	}
	return a, nil
}

// Send submits the order through its broker's adapter.
func (r *AdapterRouter) Send(ctx context.Context, order *domain.Order) error {
	r.logger.Debug("send", slog.String("order", order.String()))
	a, err := r.adapter(order.Broker)
	if err != nil {
		return err
	}
	if err := a.Send(ctx, order); err != nil {
		r.stability.Decrement(order.Broker)
		return fmt.Errorf("broker: send via %s: %w", order.Broker, err)
	}
	r.reporter.OrderCreated(ctx, order)
	return nil
}

// Cancel cancels the order through its broker's adapter.
func (r *AdapterRouter) Cancel(ctx context.Context, order *domain.Order) error {
	r.logger.Debug("cancel", slog.String("order", order.String()))
	a, err := r.adapter(order.Broker)
	if err != nil {
		return err
	}
	if err := a.Cancel(ctx, order); err != nil {
		r.stability.Decrement(order.Broker)
		return fmt.Errorf("broker: cancel via %s: %w", order.Broker, err)
	}
	r.reporter.OrderUpdated(ctx, order)
	return nil
}

// Refresh updates the order's fill state through its broker's adapter.
func (r *AdapterRouter) Refresh(ctx context.Context, order *domain.Order) error {
	r.logger.Debug("refresh", slog.String("order", order.String()))
	a, err := r.adapter(order.Broker)
	if err != nil {
		return err
	}
	if err := a.Refresh(ctx, order); err != nil {
		r.stability.Decrement(order.Broker)
		return fmt.Errorf("broker: refresh via %s: %w", order.Broker, err)
	}
	r.reporter.OrderUpdated(ctx, order)
	return nil
}

// FetchQuotes returns the broker's current quotes. On failure it decrements
// the broker's stability, logs, and returns an empty list so one venue's
// outage never aborts an aggregation cycle.
func (r *AdapterRouter) FetchQuotes(ctx context.Context, broker domain.Broker) []domain.Quote {
	a, err := r.adapter(broker)
	if err != nil {
		r.logger.Error("fetch quotes failed", slog.String("error", err.Error()))
		return nil
	}
	quotes, err := a.FetchQuotes(ctx)
	if err != nil {
		r.stability.Decrement(broker)
		r.logger.Error("fetch quotes failed",
			slog.String("broker", broker),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return quotes
}

// GetPositions returns the broker's net positions keyed by currency.
func (r *AdapterRouter) GetPositions(ctx context.Context, broker domain.Broker) (map[string]float64, error) {
	a, err := r.adapter(broker)
	if err != nil {
		return nil, err
	}
	positions, err := a.GetPositions(ctx)
	if err != nil {
		r.stability.Decrement(broker)
		return nil, fmt.Errorf("broker: get positions via %s: %w", broker, err)
	}
	return positions, nil
}
