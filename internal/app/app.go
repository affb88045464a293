// Package app owns the application lifecycle: it wires the dependencies,
// starts every long-running component, and tears everything down in reverse
// order on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nh-chitose/r2-re/internal/arbitrager"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the engine goroutines, and blocks until
// the context is cancelled or a component fails. A fatal-error stop from the
// arbitrager is reported as a clean shutdown with a distinct log line.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("symbol", a.cfg.Symbol),
		slog.Bool("demoMode", a.cfg.DemoMode),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// The archiver sees each snapshot before the trading cycle consumes it.
	deps.Aggregator.OnQuoteUpdated(func(ctx context.Context, quotes []domain.Quote) error {
		if deps.Archiver != nil {
			deps.Archiver.Update(quotes)
		}
		return deps.Arbitrager.HandleQuotes(ctx, quotes)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Stability.Run(ctx) })
	g.Go(func() error { return deps.Positions.Run(ctx) })
	g.Go(func() error { return deps.Aggregator.Run(ctx) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}
	if deps.Hub != nil {
		g.Go(func() error { return deps.Hub.Run(ctx) })
		g.Go(func() error { return deps.Monitor.Run(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, arbitrager.ErrFatal) {
		a.logger.ErrorContext(ctx, "stopped by fatal trade error", slog.String("error", err.Error()))
		return err
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
