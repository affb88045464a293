package trader

import (
	"context"
	"log/slog"
	"time"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
)

// SingleLegHandler flattens the one-sided exposure left when a pair executes
// unevenly. The configured action decides between reversing the filled-ahead
// leg and proceeding with the lagging one; Cancel leaves the exposure alone.
type SingleLegHandler struct {
	cfgStore *config.Store
	router   OrderRouter
	reporter *event.Reporter
	logger   *slog.Logger
}

// NewSingleLegHandler creates a SingleLegHandler.
func NewSingleLegHandler(cfgStore *config.Store, router OrderRouter, reporter *event.Reporter, logger *slog.Logger) *SingleLegHandler {
	return &SingleLegHandler{
		cfgStore: cfgStore,
		router:   router,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "single_leg_handler")),
	}
}

// Handle takes the two canceled-or-partial legs and issues at most one
// recovery order per the configured action. It returns the recovery orders
// (possibly partially filled themselves) so the caller can fold them into the
// combined profit.
func (h *SingleLegHandler) Handle(ctx context.Context, orders domain.OrderPair, closable bool) ([]*domain.Order, error) {
	cfg := h.cfgStore.Config()

	action := cfg.OnSingleLeg.Action
	if closable && cfg.OnSingleLeg.ActionOnExit != "" {
		action = cfg.OnSingleLeg.ActionOnExit
	}
	h.logger.InfoContext(ctx, "handling single leg",
		slog.String("action", string(action)),
		slog.Bool("closable", closable))

	switch action {
	case config.SingleLegReverse:
		return h.reverseLeg(ctx, orders, cfg.OnSingleLeg.Options)
	case config.SingleLegProceed:
		return h.proceedLeg(ctx, orders, cfg.OnSingleLeg.Options)
	default:
		// Cancel: legs are already canceled, exposure is accepted as is.
		return nil, nil
	}
}

// reverseLeg unwinds the leg that filled more by trading it back on the same
// broker.
func (h *SingleLegHandler) reverseLeg(ctx context.Context, orders domain.OrderPair, opts config.SingleLegOptions) ([]*domain.Order, error) {
	large, small := byFilledSize(orders)
	size := domain.ERound(large.FilledSize - small.FilledSize)
	side := large.Side.Reversed()
	// Move the limit price in the direction that fills fast: down when we
	// must sell, up when we must buy.
	price := large.Price
	if side == domain.OrderSideSell {
		price = domain.ERound(price * (1 - opts.LimitMovePercent/100))
	} else {
		price = domain.ERound(price * (1 + opts.LimitMovePercent/100))
	}
	return h.sendRecovery(ctx, large, side, size, price, opts.TTL.Duration)
}

// proceedLeg completes the lagging leg's original plan on its own broker.
func (h *SingleLegHandler) proceedLeg(ctx context.Context, orders domain.OrderPair, opts config.SingleLegOptions) ([]*domain.Order, error) {
	large, small := byFilledSize(orders)
	size := domain.ERound(large.FilledSize - small.FilledSize)
	side := small.Side
	price := small.Price
	if side == domain.OrderSideBuy {
		price = domain.ERound(price * (1 + opts.LimitMovePercent/100))
	} else {
		price = domain.ERound(price * (1 - opts.LimitMovePercent/100))
	}
	return h.sendRecovery(ctx, small, side, size, price, opts.TTL.Duration)
}

// sendRecovery submits one limit order modeled on the template leg, waits out
// the TTL, and cancels whatever remains unfilled.
func (h *SingleLegHandler) sendRecovery(
	ctx context.Context,
	template *domain.Order,
	side domain.OrderSide,
	size, price float64,
	ttl time.Duration,
) ([]*domain.Order, error) {
	if size <= 0 {
		return nil, nil
	}
	order := domain.NewOrder(domain.OrderInit{
		Symbol:         template.Symbol,
		Broker:         template.Broker,
		Side:           side,
		Size:           size,
		Price:          price,
		Type:           domain.OrderTypeLimit,
		CashMarginType: template.CashMarginType,
		LeverageLevel:  template.LeverageLevel,
	})
	h.logger.InfoContext(ctx, "sending recovery order", slog.String("order", order.String()))
	if err := h.router.Send(ctx, order); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return []*domain.Order{order}, ctx.Err()
	case <-time.After(ttl):
	}
	if err := h.router.Refresh(ctx, order); err != nil {
		h.logger.WarnContext(ctx, "recovery order refresh failed",
			slog.String("order", order.String()),
			slog.String("error", err.Error()))
	}
	h.reporter.OrderUpdated(ctx, order)
	if !order.Filled() {
		if err := h.router.Cancel(ctx, order); err != nil {
			h.logger.ErrorContext(ctx, "failed to cancel recovery order",
				slog.String("order", order.String()),
				slog.String("error", err.Error()))
		}
	}
	h.logger.InfoContext(ctx, "recovery order finished", slog.String("order", order.String()))
	return []*domain.Order{order}, nil
}

// byFilledSize returns the legs ordered by filled size, larger first.
func byFilledSize(orders domain.OrderPair) (large, small *domain.Order) {
	if orders[0].FilledSize >= orders[1].FilledSize {
		return orders[0], orders[1]
	}
	return orders[1], orders[0]
}
