// Package trader executes opportunities: it submits both legs of a pair,
// polls them to completion within a bounded retry budget, and hands leftover
// one-sided exposure to the single-leg handler.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
	"github.com/nh-chitose/r2-re/internal/notify"
	"golang.org/x/sync/errgroup"
)

// OrderRouter is the slice of the adapter router the trader needs.
type OrderRouter interface {
	Send(ctx context.Context, order *domain.Order) error
	Cancel(ctx context.Context, order *domain.Order) error
	Refresh(ctx context.Context, order *domain.Order) error
}

// Notifier delivers operator alerts. A nil *notify.Notifier satisfies it as a
// no-op.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// PairTrader turns an analysis result into two live orders and sees them
// through to a terminal state.
type PairTrader struct {
	cfgStore  *config.Store
	router    OrderRouter
	pairStore domain.ActivePairStore
	singleLeg *SingleLegHandler
	journal   domain.TradeJournal
	notifier  Notifier
	reporter  *event.Reporter
	logger    *slog.Logger
}

// NewPairTrader creates a PairTrader. journal may be nil when no trade journal
// is configured.
func NewPairTrader(
	cfgStore *config.Store,
	router OrderRouter,
	pairStore domain.ActivePairStore,
	singleLeg *SingleLegHandler,
	journal domain.TradeJournal,
	notifier Notifier,
	reporter *event.Reporter,
	logger *slog.Logger,
) *PairTrader {
	return &PairTrader{
		cfgStore:  cfgStore,
		router:    router,
		pairStore: pairStore,
		singleLeg: singleLeg,
		journal:   journal,
		notifier:  notifier,
		reporter:  reporter,
		logger:    logger.With(slog.String("component", "pair_trader")),
	}
}

// Trade submits both legs of the opportunity and polls until they fill or the
// retry budget runs out. closable marks an unwind of an existing pair; only
// fresh entries are stored as active pairs on success.
func (t *PairTrader) Trade(ctx context.Context, result domain.SpreadAnalysisResult, closable bool) error {
	cfg := t.cfgStore.Config()

	buy, err := t.buildOrder(cfg, result.Ask, domain.OrderSideBuy, result.TargetVolume)
	if err != nil {
		return err
	}
	sell, err := t.buildOrder(cfg, result.Bid, domain.OrderSideSell, result.TargetVolume)
	if err != nil {
		return err
	}
	orders := domain.OrderPair{buy, sell}

	t.logger.InfoContext(ctx, "sending pair",
		slog.String("buy", buy.String()),
		slog.String("sell", sell.String()),
		slog.Bool("closable", closable))
	if err := t.sendBoth(ctx, orders); err != nil {
		return err
	}

	filled, err := t.pollUntilFilled(ctx, orders, cfg)
	if err != nil {
		return err
	}

	allOrders := []*domain.Order{orders[0], orders[1]}
	if !filled {
		t.cancelPending(ctx, orders)
		if residual := residualSize(orders[:]); residual != 0 {
			t.logger.WarnContext(ctx, "pair left one-sided exposure",
				slog.Float64("residual", residual))
			t.notify(ctx, notify.EventSingleLeg, "Single leg",
				fmt.Sprintf("pair %s left residual %v", orders, residual))
			recovery, err := t.singleLeg.Handle(ctx, orders, closable)
			if err != nil {
				return fmt.Errorf("trader: single leg recovery: %w", err)
			}
			allOrders = append(allOrders, recovery...)
		}
	}

	profit, commission := domain.CalcProfit(allOrders, cfg.CommissionPercent)
	t.logger.InfoContext(ctx, "trade finished",
		slog.Bool("bothFilled", filled),
		slog.Float64("profit", profit),
		slog.Float64("commission", commission))
	for _, o := range allOrders {
		t.reporter.OrderFinalized(ctx, o)
	}

	if filled {
		if closable {
			t.notify(ctx, notify.EventPairClosed, "Pair closed",
				fmt.Sprintf("%s, profit %v", orders, profit))
		} else if orders[0].Size == orders[1].Size {
			if _, err := t.pairStore.Put(ctx, orders); err != nil {
				t.logger.ErrorContext(ctx, "failed to store active pair",
					slog.String("pair", orders.String()),
					slog.String("error", err.Error()))
			}
			t.notify(ctx, notify.EventPairOpened, "Pair opened",
				fmt.Sprintf("%s, expected profit %v", orders, result.TargetProfit))
		}
	}
	t.record(ctx, cfg.Symbol, allOrders, profit, commission, closable)
	return nil
}

func (t *PairTrader) notify(ctx context.Context, event, title, message string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, event, title, message); err != nil {
		t.logger.DebugContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}

// buildOrder constructs one leg from the quote it trades against, applying
// the acceptable price range so minor book moves between analysis and
// submission do not reject the order.
func (t *PairTrader) buildOrder(
	cfg *config.Config,
	quote domain.Quote,
	side domain.OrderSide,
	size float64,
) (*domain.Order, error) {
	bc, ok := cfg.FindBroker(quote.Broker)
	if !ok {
		return nil, fmt.Errorf("trader: unknown broker %q", quote.Broker)
	}
	price := quote.Price
	if cfg.AcceptablePriceRange != nil {
		r := *cfg.AcceptablePriceRange / 100
		if side == domain.OrderSideBuy {
			price = domain.ERound(price * (1 + r))
		} else {
			price = domain.ERound(price * (1 - r))
		}
	}
	cashMargin := domain.CashMarginType(bc.CashMarginType)
	if cashMargin == "" {
		cashMargin = domain.CashMarginCash
	}
	return domain.NewOrder(domain.OrderInit{
		Symbol:         cfg.Symbol,
		Broker:         quote.Broker,
		Side:           side,
		Size:           size,
		Price:          price,
		Type:           domain.OrderTypeLimit,
		CashMarginType: cashMargin,
		LeverageLevel:  bc.LeverageLevel,
	}), nil
}

// sendBoth submits both legs concurrently on the parent context, so a
// rejected leg never cancels the other submission mid-flight. If either
// submission fails, any leg that did reach its broker is canceled before the
// error is returned.
func (t *PairTrader) sendBoth(ctx context.Context, orders domain.OrderPair) error {
	var g errgroup.Group
	for _, o := range orders {
		o := o
		g.Go(func() error { return t.router.Send(ctx, o) })
	}
	if err := g.Wait(); err != nil {
		for _, o := range orders {
			if o.BrokerOrderID != "" && !terminal(o.Status) {
				if cancelErr := t.router.Cancel(ctx, o); cancelErr != nil {
					t.logger.ErrorContext(ctx, "failed to cancel leg after send failure",
						slog.String("order", o.String()),
						slog.String("error", cancelErr.Error()))
				}
			}
		}
		return fmt.Errorf("trader: send pair: %w", err)
	}
	return nil
}

// pollUntilFilled waits for both legs within max_retry_count checks. Refresh
// failures count against the budget but are otherwise non-fatal; the broker
// may recover on the next check.
func (t *PairTrader) pollUntilFilled(ctx context.Context, orders domain.OrderPair, cfg *config.Config) (bool, error) {
	for i := 1; i <= cfg.MaxRetryCount; i++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(cfg.OrderStatusCheckInterval.Duration):
		}
		t.logger.InfoContext(ctx, "checking order status",
			slog.Int("attempt", i),
			slog.Int("maxAttempts", cfg.MaxRetryCount))
		for _, o := range orders {
			if o.Filled() {
				continue
			}
			if err := t.router.Refresh(ctx, o); err != nil {
				t.logger.WarnContext(ctx, "order refresh failed",
					slog.String("order", o.String()),
					slog.String("error", err.Error()))
				continue
			}
			t.reporter.OrderUpdated(ctx, o)
		}
		if orders[0].Filled() && orders[1].Filled() {
			t.logger.InfoContext(ctx, "both legs filled")
			return true, nil
		}
	}
	return false, nil
}

// cancelPending cancels every leg that has not reached a terminal state.
func (t *PairTrader) cancelPending(ctx context.Context, orders domain.OrderPair) {
	for _, o := range orders {
		if terminal(o.Status) {
			continue
		}
		if err := t.router.Cancel(ctx, o); err != nil {
			t.logger.ErrorContext(ctx, "failed to cancel order",
				slog.String("order", o.String()),
				slog.String("error", err.Error()))
			continue
		}
		t.logger.InfoContext(ctx, "order canceled", slog.String("order", o.String()))
	}
}

func (t *PairTrader) record(ctx context.Context, symbol string, orders []*domain.Order, profit, commission float64, closable bool) {
	if t.journal == nil {
		return
	}
	rec := domain.TradeRecord{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Orders:     orders,
		Profit:     profit,
		Commission: commission,
		Closable:   closable,
		CreatedAt:  time.Now().UTC(),
	}
	if err := t.journal.Record(ctx, rec); err != nil {
		t.logger.WarnContext(ctx, "trade journal write failed", slog.String("error", err.Error()))
	}
}

func terminal(s domain.OrderStatus) bool {
	switch s {
	case domain.OrderStatusExecuted, domain.OrderStatusCanceled, domain.OrderStatusRejected, domain.OrderStatusExpired:
		return true
	}
	return false
}

// residualSize is the net signed exposure the orders left behind: filled buy
// size counts negative, filled sell size positive. Zero means flat.
func residualSize(orders []*domain.Order) float64 {
	var sum float64
	for _, o := range orders {
		if o.Side == domain.OrderSideBuy {
			sum -= o.FilledSize
		} else {
			sum += o.FilledSize
		}
	}
	return domain.ERound(sum)
}
