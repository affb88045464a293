// Package position periodically computes each broker's net exposure and the
// size still allowed in each trading direction.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nh-chitose/r2-re/internal/broker"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

// Service owns the broker position map. It refreshes the map on a fixed
// interval; overlapping ticks are dropped, and any fetch error leaves the
// previous snapshot in place so consumers never observe a half-built map.
type Service struct {
	cfgStore  *config.Store
	router    *broker.AdapterRouter
	stability *broker.StabilityTracker
	logger    *slog.Logger

	refreshing atomic.Bool
	mu         sync.RWMutex
	positions  map[domain.Broker]domain.BrokerPosition
}

// NewService creates a position Service.
func NewService(
	cfgStore *config.Store,
	router *broker.AdapterRouter,
	stability *broker.StabilityTracker,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfgStore:  cfgStore,
		router:    router,
		stability: stability,
		logger:    logger.With(slog.String("component", "position_service")),
		positions: make(map[domain.Broker]domain.BrokerPosition),
	}
}

// Run refreshes once immediately, then on every refresh interval tick until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	interval := s.cfgStore.Config().PositionRefreshInterval.Duration
	s.logger.Debug("starting", slog.Duration("interval", interval))

	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh fetches every enabled broker's position and rebuilds the map. A
// reentrancy guard skips the call when a refresh is already in progress. On
// any fetch error the previous snapshot is retained.
func (s *Service) Refresh(ctx context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.logger.Debug("refresh already in progress, skipping")
		return
	}
	defer s.refreshing.Store(false)

	cfg := s.cfgStore.Config()
	var enabled []config.BrokerConfig
	for _, b := range cfg.Brokers {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}

	// Brokers are fetched on the parent context; a failing venue never
	// cancels the sibling fetches.
	results := make([]domain.BrokerPosition, len(enabled))
	var g errgroup.Group
	for i, bc := range enabled {
		i, bc := i, bc
		g.Go(func() error {
			pos, err := s.brokerPosition(ctx, bc, cfg)
			if err != nil {
				return err
			}
			results[i] = pos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Fail-soft: keep the previous snapshot rather than publishing a
		// partial map.
		s.logger.Error("position refresh failed", slog.String("error", err.Error()))
		return
	}

	next := make(map[domain.Broker]domain.BrokerPosition, len(results))
	for _, p := range results {
		next[p.Broker] = p
	}
	s.mu.Lock()
	s.positions = next
	s.mu.Unlock()
}

// brokerPosition computes one broker's position entry from its fetched net
// base-currency position and configured limits.
func (s *Service) brokerPosition(ctx context.Context, bc config.BrokerConfig, cfg *config.Config) (domain.BrokerPosition, error) {
	positions, err := s.router.GetPositions(ctx, bc.Name)
	if err != nil {
		return domain.BrokerPosition{}, err
	}
	baseCcy := cfg.BaseCurrency()
	base, ok := positions[baseCcy]
	if !ok {
		return domain.BrokerPosition{}, fmt.Errorf("position: no %s position reported by %s", baseCcy, bc.Name)
	}

	allowedLong := max(0, bc.MaxLongPosition-base)
	allowedShort := max(0, bc.MaxShortPosition+base)
	stable := s.stability.IsStable(bc.Name)
	return domain.BrokerPosition{
		Broker:           bc.Name,
		BaseCcyPosition:  base,
		AllowedLongSize:  allowedLong,
		AllowedShortSize: allowedShort,
		LongAllowed:      allowedLong >= cfg.MinSize && stable,
		ShortAllowed:     allowedShort >= cfg.MinSize && stable,
	}, nil
}

// Map returns a copy of the current position map.
func (s *Service) Map() map[domain.Broker]domain.BrokerPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Broker]domain.BrokerPosition, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// NetExposure is the signed sum of all brokers' base-currency positions.
func (s *Service) NetExposure() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	for _, p := range s.positions {
		sum += p.BaseCcyPosition
	}
	return domain.ERound(sum)
}

// LogSummary writes the current positions at info level, one line per broker.
func (s *Service) LogSummary(ctx context.Context) {
	baseCcy := s.cfgStore.Config().BaseCurrency()
	s.logger.InfoContext(ctx, "net exposure",
		slog.Float64("exposure", domain.RoundTo(s.NetExposure(), 3)),
		slog.String("ccy", baseCcy),
	)
	for _, p := range s.Map() {
		s.logger.InfoContext(ctx, "broker position",
			slog.String("broker", p.Broker),
			slog.Float64("position", domain.RoundTo(p.BaseCcyPosition, 3)),
			slog.Bool("long_allowed", p.LongAllowed),
			slog.Bool("short_allowed", p.ShortAllowed),
			slog.Int("stability", s.stability.Stability(p.Broker)),
		)
	}
}
