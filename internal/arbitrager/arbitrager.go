// Package arbitrager drives the trading loop: every quote snapshot is turned
// into at most one trade, and fatal broker errors stop the loop for good.
package arbitrager

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
	"github.com/nh-chitose/r2-re/internal/notify"
	"github.com/nh-chitose/r2-re/internal/searcher"
)

// ErrFatal wraps a trade error that matched one of the configured fatal
// substrings. Once returned, the arbitrager refuses further cycles.
var ErrFatal = errors.New("arbitrager: fatal trade error")

// OpportunitySearcher finds the next actionable opportunity in a snapshot.
type OpportunitySearcher interface {
	Search(ctx context.Context, quotes []domain.Quote) (searcher.Result, error)
}

// Trader executes an opportunity to completion.
type Trader interface {
	Trade(ctx context.Context, result domain.SpreadAnalysisResult, closable bool) error
}

// PositionReporter logs the current exposure summary before each search.
type PositionReporter interface {
	LogSummary(ctx context.Context)
}

// Notifier delivers operator alerts. A nil *notify.Notifier satisfies it as a
// no-op.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Arbitrager is the quote handler registered with the aggregator. It runs one
// search/trade cycle per snapshot and enforces the fatal-error stop.
type Arbitrager struct {
	cfgStore  *config.Store
	searcher  OpportunitySearcher
	trader    Trader
	positions PositionReporter
	notifier  Notifier
	reporter  *event.Reporter
	logger    *slog.Logger
	stopped   atomic.Bool
}

// New creates an Arbitrager.
func New(
	cfgStore *config.Store,
	s OpportunitySearcher,
	t Trader,
	positions PositionReporter,
	notifier Notifier,
	reporter *event.Reporter,
	logger *slog.Logger,
) *Arbitrager {
	return &Arbitrager{
		cfgStore:  cfgStore,
		searcher:  s,
		trader:    t,
		positions: positions,
		notifier:  notifier,
		reporter:  reporter,
		logger:    logger.With(slog.String("component", "arbitrager")),
	}
}

// HandleQuotes is invoked by the aggregator with each folded snapshot. It
// returns ErrFatal (wrapped) when a trade error matches the configured fatal
// substrings; the caller should stop the loop then.
func (a *Arbitrager) HandleQuotes(ctx context.Context, quotes []domain.Quote) error {
	if a.stopped.Load() {
		return ErrFatal
	}
	a.positions.LogSummary(ctx)
	a.reporter.Status(ctx, "Searching...")

	result, err := a.searcher.Search(ctx, quotes)
	if err != nil {
		a.logger.ErrorContext(ctx, "search failed", slog.String("error", err.Error()))
		return nil
	}
	if !result.Found {
		a.reporter.Status(ctx, "Waiting...")
		return nil
	}

	a.reporter.Status(ctx, "Trading...")
	if err := a.trader.Trade(ctx, result.Analysis, result.Closable); err != nil {
		a.logger.ErrorContext(ctx, "trade failed", slog.String("error", err.Error()))
		if a.isFatal(err) {
			a.stopped.Store(true)
			a.reporter.Status(ctx, "Stopped by fatal error")
			a.logger.ErrorContext(ctx, "fatal error, stopping the arbitrager loop")
			if a.notifier != nil {
				_ = a.notifier.Notify(ctx, notify.EventFatalError, "Fatal error", err.Error())
			}
			return errors.Join(ErrFatal, err)
		}
		return nil
	}

	a.sleepAfterSend(ctx)
	return nil
}

// isFatal matches the error text against the configured fatal substrings.
func (a *Arbitrager) isFatal(err error) bool {
	msg := err.Error()
	for _, s := range a.cfgStore.Config().FatalErrors {
		if s != "" && strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// sleepAfterSend gives broker books time to settle after a trade so the next
// cycle does not act on quotes we just consumed.
func (a *Arbitrager) sleepAfterSend(ctx context.Context) {
	d := a.cfgStore.Config().SleepAfterSend.Duration
	if d <= 0 {
		return
	}
	a.logger.InfoContext(ctx, "sleeping after send", slog.Duration("duration", d))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
