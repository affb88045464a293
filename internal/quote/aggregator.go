// Package quote aggregates order-book quotes from every eligible broker into
// one folded market snapshot per cycle.
package quote

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nh-chitose/r2-re/internal/broker"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
)

// Handler consumes a fresh quote snapshot. The aggregator awaits it before
// finishing the cycle, so a slow handler naturally causes overlapping ticks to
// be skipped instead of queued.
type Handler func(ctx context.Context, quotes []domain.Quote) error

// Aggregator polls all enabled, time-window-eligible brokers on a fixed
// interval, folds their raw quotes into price buckets, and hands the snapshot
// to the registered handler. At most one aggregation cycle runs at a time.
type Aggregator struct {
	cfgStore *config.Store
	router   *broker.AdapterRouter
	reporter *event.Reporter
	logger   *slog.Logger

	running atomic.Bool
	handler Handler
}

// NewAggregator creates an Aggregator.
func NewAggregator(
	cfgStore *config.Store,
	router *broker.AdapterRouter,
	reporter *event.Reporter,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		cfgStore: cfgStore,
		router:   router,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "quote_aggregator")),
	}
}

// OnQuoteUpdated registers the snapshot handler. Must be called before Run.
func (a *Aggregator) OnQuoteUpdated(h Handler) {
	a.handler = h
}

// Run aggregates once immediately, then on every iteration interval tick
// until the context is cancelled. A handler error stops the loop; the handler
// signals only unrecoverable conditions that way.
func (a *Aggregator) Run(ctx context.Context) error {
	interval := a.cfgStore.Config().IterationInterval.Duration
	a.logger.Debug("starting", slog.Duration("interval", interval))

	if err := a.aggregate(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.aggregate(ctx); err != nil {
				return err
			}
		}
	}
}

// aggregate performs one cycle. A reentrancy guard drops the tick when the
// previous cycle is still in flight.
func (a *Aggregator) aggregate(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Debug("aggregation already running, skipping tick")
		return nil
	}
	defer a.running.Store(false)

	cfg := a.cfgStore.Config()
	brokers := eligibleBrokers(cfg, time.Now(), a.logger)

	quotesByBroker := make([][]domain.Quote, len(brokers))
	var g errgroup.Group
	for i, name := range brokers {
		i, name := i, name
		g.Go(func() error {
			// FetchQuotes isolates adapter failures and yields nil.
			quotesByBroker[i] = a.router.FetchQuotes(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.Quote
	for _, qs := range quotesByBroker {
		all = append(all, qs...)
	}
	folded := Fold(all, cfg.PriceMergeSize)
	a.logger.Debug("aggregated",
		slog.Int("brokers", len(brokers)),
		slog.Int("raw_quotes", len(all)),
		slog.Int("folded_quotes", len(folded)),
	)

	a.reporter.QuoteUpdated(ctx, folded)
	if a.handler != nil {
		if err := a.handler(ctx, folded); err != nil {
			a.logger.Error("quote handler failed", slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

// eligibleBrokers returns the names of brokers that are enabled and outside
// all of their configured no-trade periods at the given time.
func eligibleBrokers(cfg *config.Config, now time.Time, logger *slog.Logger) []domain.Broker {
	var out []domain.Broker
	for _, b := range cfg.Brokers {
		if !b.Enabled {
			continue
		}
		if inNoTradePeriod(b, now, logger) {
			logger.Debug("broker inside no-trade period", slog.String("broker", b.Name))
			continue
		}
		out = append(out, b.Name)
	}
	return out
}

// inNoTradePeriod reports whether now falls inside any of the broker's
// configured [start, end) intervals. Malformed intervals are ignored.
func inNoTradePeriod(b config.BrokerConfig, now time.Time, logger *slog.Logger) bool {
	for _, period := range b.NoTradePeriods {
		if len(period) != 2 {
			logger.Warn("invalid no-trade period, ignoring", slog.String("broker", b.Name))
			continue
		}
		start, err1 := time.Parse(time.RFC3339, period[0])
		end, err2 := time.Parse(time.RFC3339, period[1])
		if err1 != nil || err2 != nil {
			logger.Warn("invalid no-trade period, ignoring", slog.String("broker", b.Name))
			continue
		}
		if !now.Before(start) && now.Before(end) {
			return true
		}
	}
	return false
}

// foldKey identifies one merged quote bucket.
type foldKey struct {
	price  float64
	broker domain.Broker
	side   domain.QuoteSide
}

// Fold merges raw quotes by price bucket: ask prices are rounded up to the
// nearest multiple of step, bid prices rounded down, and quotes sharing
// (bucketed price, broker, side) are combined into one synthetic quote whose
// volume is the sum. The result is sorted for deterministic iteration.
func Fold(quotes []domain.Quote, step float64) []domain.Quote {
	merged := make(map[foldKey]float64)
	for _, q := range quotes {
		var price float64
		if q.Side == domain.Ask {
			price = ceilStep(q.Price, step)
		} else {
			price = floorStep(q.Price, step)
		}
		merged[foldKey{price, q.Broker, q.Side}] += q.Volume
	}

	out := make([]domain.Quote, 0, len(merged))
	for k, volume := range merged {
		out = append(out, domain.Quote{Broker: k.broker, Side: k.side, Price: k.price, Volume: volume})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Broker != out[j].Broker {
			return out[i].Broker < out[j].Broker
		}
		if out[i].Side != out[j].Side {
			return out[i].Side < out[j].Side
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func ceilStep(price, step float64) float64 {
	return math.Ceil(price/step) * step
}

func floorStep(price, step float64) float64 {
	return math.Floor(price/step) * step
}
