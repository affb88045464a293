package searcher

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nh-chitose/r2-re/internal/analysis"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
	"github.com/nh-chitose/r2-re/internal/store/memory"
)

// staticPositions implements PositionMapper with a fixed snapshot.
type staticPositions struct {
	m map[domain.Broker]domain.BrokerPosition
}

func (s staticPositions) Map() map[domain.Broker]domain.BrokerPosition { return s.m }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openPositions() staticPositions {
	return staticPositions{m: map[domain.Broker]domain.BrokerPosition{
		"alpha": {Broker: "alpha", AllowedLongSize: 5, AllowedShortSize: 5, LongAllowed: true, ShortAllowed: true},
		"beta":  {Broker: "beta", AllowedLongSize: 5, AllowedShortSize: 5, LongAllowed: true, ShortAllowed: true},
	}}
}

func newTestSearcher(cfg *config.Config, pairStore domain.ActivePairStore) *Searcher {
	logger := discardLogger()
	store := config.NewStore(cfg)
	analyzer := analysis.NewAnalyzer(store, logger)
	factory := analysis.NewCheckerFactory(store, func() float64 { return 0 }, logger)
	reporter := event.NewReporter(nil, logger)
	return NewSearcher(store, analyzer, factory, openPositions(), pairStore, reporter, logger)
}

func searchConfig() *config.Config {
	cfg := config.Defaults()
	cfg.DemoMode = false
	cfg.MaxSize = 2
	cfg.MinSize = 0.01
	cfg.Brokers = []config.BrokerConfig{
		{Name: "alpha", Enabled: true, MaxLongPosition: 5, MaxShortPosition: 5},
		{Name: "beta", Enabled: true, MaxLongPosition: 5, MaxShortPosition: 5},
	}
	return &cfg
}

func filledOrder(broker domain.Broker, side domain.OrderSide, size, price float64) *domain.Order {
	o := domain.NewOrder(domain.OrderInit{
		Symbol: "BTC/JPY",
		Broker: broker,
		Side:   side,
		Size:   size,
		Price:  price,
		Type:   domain.OrderTypeLimit,
	})
	o.FilledSize = size
	o.Executions = []domain.Execution{{Size: size, Price: price}}
	o.UpdateStatus(domain.OrderStatusExecuted)
	return o
}

func TestSearchFindsOpenOpportunity(t *testing.T) {
	s := newTestSearcher(searchConfig(), memory.NewPairStore())
	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Ask, Price: 100, Volume: 1},
		{Broker: "beta", Side: domain.Bid, Price: 105, Volume: 1},
	}

	result, err := s.Search(context.Background(), quotes)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.False(t, result.Closable)
	assert.Equal(t, 5.0, result.Analysis.TargetProfit)
}

func TestSearchNoOpportunityWhenSpreadNotInverted(t *testing.T) {
	s := newTestSearcher(searchConfig(), memory.NewPairStore())
	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Ask, Price: 105, Volume: 1},
		{Broker: "beta", Side: domain.Bid, Price: 100, Volume: 1},
	}

	result, err := s.Search(context.Background(), quotes)
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestSearchNoOpportunityOnAnalysisFailure(t *testing.T) {
	s := newTestSearcher(searchConfig(), memory.NewPairStore())

	// An empty snapshot is a normal condition, not an error.
	result, err := s.Search(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestSearchFindsClosablePairAndRemovesIt(t *testing.T) {
	cfg := searchConfig()
	minExit := 0.0
	cfg.MinExitTargetProfit = &minExit
	pairStore := memory.NewPairStore()
	s := newTestSearcher(cfg, pairStore)

	// Opened buy alpha @100 / sell beta @105. Unwinding at alpha bid 104 and
	// beta ask 101 locks in more profit.
	pair := domain.OrderPair{
		filledOrder("alpha", domain.OrderSideBuy, 0.5, 100),
		filledOrder("beta", domain.OrderSideSell, 0.5, 105),
	}
	key, err := pairStore.Put(context.Background(), pair)
	require.NoError(t, err)

	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Bid, Price: 104, Volume: 1},
		{Broker: "beta", Side: domain.Ask, Price: 101, Volume: 1},
	}

	result, err := s.Search(context.Background(), quotes)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.True(t, result.Closable)
	assert.Equal(t, key, result.ClosableKey)
	assert.Equal(t, 0.5, result.Analysis.TargetVolume)

	// The winning pair must already be gone from the store.
	_, err = pairStore.Get(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchSkipsUnprofitableClose(t *testing.T) {
	cfg := searchConfig()
	minExit := 10.0
	cfg.MinExitTargetProfit = &minExit
	cfg.MinTargetProfit = 100
	pairStore := memory.NewPairStore()
	s := newTestSearcher(cfg, pairStore)

	pair := domain.OrderPair{
		filledOrder("alpha", domain.OrderSideBuy, 0.5, 100),
		filledOrder("beta", domain.OrderSideSell, 0.5, 105),
	}
	key, err := pairStore.Put(context.Background(), pair)
	require.NoError(t, err)

	// Unwinding here earns ~2, below the 10 exit threshold; the searcher
	// falls through to the entry search, which also finds nothing.
	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Bid, Price: 104, Volume: 1},
		{Broker: "beta", Side: domain.Ask, Price: 101, Volume: 1},
	}

	result, err := s.Search(context.Background(), quotes)
	require.NoError(t, err)
	assert.False(t, result.Found)

	_, err = pairStore.Get(context.Background(), key)
	assert.NoError(t, err)
}
