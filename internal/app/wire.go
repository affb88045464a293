package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nh-chitose/r2-re/internal/analysis"
	"github.com/nh-chitose/r2-re/internal/arbitrager"
	s3blob "github.com/nh-chitose/r2-re/internal/blob/s3"
	"github.com/nh-chitose/r2-re/internal/broker"
	"github.com/nh-chitose/r2-re/internal/broker/paper"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
	"github.com/nh-chitose/r2-re/internal/monitor"
	"github.com/nh-chitose/r2-re/internal/notify"
	"github.com/nh-chitose/r2-re/internal/position"
	"github.com/nh-chitose/r2-re/internal/quote"
	"github.com/nh-chitose/r2-re/internal/searcher"
	"github.com/nh-chitose/r2-re/internal/store/memory"
	"github.com/nh-chitose/r2-re/internal/store/postgres"
	redisstore "github.com/nh-chitose/r2-re/internal/store/redis"
	"github.com/nh-chitose/r2-re/internal/trader"
)

// paperStartMid is the initial mid price for simulated books. The value is in
// the quote currency and only matters for demo-mode realism.
const paperStartMid = 5_000_000

// Dependencies bundles everything the application lifecycle needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	CfgStore   *config.Store
	PairStore  domain.ActivePairStore
	Notifier   *notify.Notifier
	Stability  *broker.StabilityTracker
	Positions  *position.Service
	Aggregator *quote.Aggregator
	Arbitrager *arbitrager.Arbitrager

	// Optional components, nil when their backend is not configured.
	Archiver *s3blob.SpreadStatArchiver
	Hub      *monitor.Hub
	Monitor  *monitor.Server
}

// Wire constructs all concrete dependencies from the given configuration and
// returns them together with a cleanup function that releases resources in
// reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cfgStore := config.NewStore(cfg)
	deps := &Dependencies{CfgStore: cfgStore}

	// Backend probes surfaced by the monitor's health endpoint.
	var healthChecks []monitor.HealthCheck

	// --- Redis: active pair store and event bus ---
	var bus domain.EventBus
	var subscriber domain.EventSubscriber
	if cfg.Redis.Enabled {
		redisClient, err := redisstore.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PairStore = redisstore.NewPairStore(redisClient, domain.ReviveOrderPair)
		eventBus := redisstore.NewEventBus(redisClient)
		bus = eventBus
		subscriber = eventBus
		healthChecks = append(healthChecks, monitor.HealthCheck{Name: "redis", Check: redisClient.Ping})
	} else {
		deps.PairStore = memory.NewPairStore()
	}
	reporter := event.NewReporter(bus, logger)

	// --- Postgres: trade journal ---
	var journal domain.TradeJournal
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigration {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		journal = postgres.NewTradeJournal(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Broker adapters ---
	adapters, err := buildAdapters(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Core services ---
	deps.Stability = broker.NewStabilityTracker(cfgStore, logger)
	router := broker.NewAdapterRouter(adapters, deps.Stability, reporter, logger)
	deps.Positions = position.NewService(cfgStore, router, deps.Stability, logger)
	deps.Aggregator = quote.NewAggregator(cfgStore, router, reporter, logger)

	analyzer := analysis.NewAnalyzer(cfgStore, logger)
	factory := analysis.NewCheckerFactory(cfgStore, deps.Positions.NetExposure, logger)
	search := searcher.NewSearcher(cfgStore, analyzer, factory, deps.Positions, deps.PairStore, reporter, logger)
	singleLeg := trader.NewSingleLegHandler(cfgStore, router, reporter, logger)
	pairTrader := trader.NewPairTrader(cfgStore, router, deps.PairStore, singleLeg, journal, deps.Notifier, reporter, logger)
	deps.Arbitrager = arbitrager.New(cfgStore, search, pairTrader, deps.Positions, deps.Notifier, reporter, logger)

	// --- S3: spread stat archiver ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSpreadStatArchiver(cfgStore, analyzer, s3blob.NewWriter(s3Client), logger)
		healthChecks = append(healthChecks, monitor.HealthCheck{Name: "s3", Check: s3Client.Health})
	}

	// --- Monitor: WebSocket event stream ---
	if cfg.Monitor.Enabled {
		if subscriber == nil {
			logger.Warn("monitor enabled but redis is not, monitor disabled")
		} else {
			deps.Hub = monitor.NewHub(subscriber, logger)
			deps.Monitor = monitor.NewServer(cfg.Monitor, deps.Hub, healthChecks, logger)
		}
	}

	return deps, cleanup, nil
}

// buildAdapters constructs one adapter per enabled broker. The built-in
// "paper" adapter is the only compiled-in venue; anything else is a
// configuration error.
func buildAdapters(cfg *config.Config) ([]domain.BrokerAdapter, error) {
	var adapters []domain.BrokerAdapter
	for _, bc := range cfg.Brokers {
		if !bc.Enabled {
			continue
		}
		switch bc.Adapter {
		case "", "paper":
			adapters = append(adapters, paper.New(bc.Name, cfg.BaseCurrency(), paperStartMid, 0))
		default:
			return nil, fmt.Errorf("wire: broker %s: unknown adapter %q", bc.Name, bc.Adapter)
		}
	}
	return adapters, nil
}
