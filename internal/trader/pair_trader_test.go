package trader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
	"github.com/nh-chitose/r2-re/internal/notify"
	"github.com/nh-chitose/r2-re/internal/store/memory"
)

// fakeRouter fills orders on refresh according to the per-broker plan:
// 1 fills the order fully, 0.5 half, 0 leaves it open.
type fakeRouter struct {
	mu        sync.Mutex
	fills     map[domain.Broker]float64
	sendErr   map[domain.Broker]error
	sendDelay map[domain.Broker]time.Duration
	sent      []*domain.Order
	canceled  []*domain.Order
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		fills:     make(map[domain.Broker]float64),
		sendErr:   make(map[domain.Broker]error),
		sendDelay: make(map[domain.Broker]time.Duration),
	}
}

func (r *fakeRouter) Send(ctx context.Context, o *domain.Order) error {
	if d := r.sendDelay[o.Broker]; d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sendErr[o.Broker]; err != nil {
		return err
	}
	o.BrokerOrderID = "b-" + o.ID[:8]
	o.SentTime = time.Now()
	r.sent = append(r.sent, o)
	return nil
}

func (r *fakeRouter) Cancel(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.UpdateStatus(domain.OrderStatusCanceled)
	r.canceled = append(r.canceled, o)
	return nil
}

func (r *fakeRouter) Refresh(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fraction := r.fills[o.Broker]
	if fraction <= 0 {
		return nil
	}
	o.FilledSize = domain.ERound(o.Size * fraction)
	o.Executions = []domain.Execution{{Broker: o.Broker, Side: o.Side, Size: o.FilledSize, Price: o.Price}}
	if fraction >= 1 {
		o.UpdateStatus(domain.OrderStatusExecuted)
	} else {
		o.UpdateStatus(domain.OrderStatusPartiallyFilled)
	}
	return nil
}

// fakeJournal captures trade records.
type fakeJournal struct {
	mu      sync.Mutex
	records []domain.TradeRecord
}

func (j *fakeJournal) Record(_ context.Context, rec domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

// fakeNotifier captures delivered events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func traderConfig() *config.Config {
	cfg := config.Defaults()
	cfg.DemoMode = false
	cfg.MaxRetryCount = 3
	cfg.OrderStatusCheckInterval = config.Dur(time.Millisecond)
	cfg.OnSingleLeg = config.OnSingleLegConfig{
		Action:       config.SingleLegReverse,
		ActionOnExit: config.SingleLegReverse,
		Options: config.SingleLegOptions{
			LimitMovePercent: 5,
			TTL:              config.Dur(time.Millisecond),
		},
	}
	cfg.Brokers = []config.BrokerConfig{
		{Name: "alpha", Enabled: true, MaxLongPosition: 5, MaxShortPosition: 5},
		{Name: "beta", Enabled: true, MaxLongPosition: 5, MaxShortPosition: 5},
	}
	return &cfg
}

type traderFixture struct {
	trader    *PairTrader
	router    *fakeRouter
	pairStore *memory.PairStore
	journal   *fakeJournal
	notifier  *fakeNotifier
}

func newTraderFixture(cfg *config.Config) *traderFixture {
	logger := discardLogger()
	store := config.NewStore(cfg)
	router := newFakeRouter()
	pairStore := memory.NewPairStore()
	journal := &fakeJournal{}
	notifier := &fakeNotifier{}
	reporter := event.NewReporter(nil, logger)
	singleLeg := NewSingleLegHandler(store, router, reporter, logger)
	return &traderFixture{
		trader:    NewPairTrader(store, router, pairStore, singleLeg, journal, notifier, reporter, logger),
		router:    router,
		pairStore: pairStore,
		journal:   journal,
		notifier:  notifier,
	}
}

func opportunity(volume float64) domain.SpreadAnalysisResult {
	return domain.SpreadAnalysisResult{
		Ask:            domain.Quote{Broker: "alpha", Side: domain.Ask, Price: 100, Volume: 2},
		Bid:            domain.Quote{Broker: "beta", Side: domain.Bid, Price: 101, Volume: 2},
		InvertedSpread: 1,
		TargetVolume:   volume,
		TargetProfit:   volume,
	}
}

func TestTradeBothFilledStoresPair(t *testing.T) {
	f := newTraderFixture(traderConfig())
	f.router.fills["alpha"] = 1
	f.router.fills["beta"] = 1

	require.NoError(t, f.trader.Trade(context.Background(), opportunity(1), false))

	all, err := f.pairStore.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, f.router.canceled)
	assert.True(t, f.notifier.has(notify.EventPairOpened))

	require.Len(t, f.journal.records, 1)
	rec := f.journal.records[0]
	assert.Equal(t, 1.0, rec.Profit)
	assert.False(t, rec.Closable)
	assert.Len(t, rec.Orders, 2)
}

func TestTradeClosableSkipsStore(t *testing.T) {
	f := newTraderFixture(traderConfig())
	f.router.fills["alpha"] = 1
	f.router.fills["beta"] = 1

	require.NoError(t, f.trader.Trade(context.Background(), opportunity(0.5), true))

	all, err := f.pairStore.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.True(t, f.notifier.has(notify.EventPairClosed))
	require.Len(t, f.journal.records, 1)
	assert.True(t, f.journal.records[0].Closable)
}

func TestTradeBudgetExhaustedCancelsBoth(t *testing.T) {
	f := newTraderFixture(traderConfig())
	// No fills at all: the retry budget runs out and both legs are canceled
	// with no residual exposure, so no recovery order goes out.

	require.NoError(t, f.trader.Trade(context.Background(), opportunity(1), false))

	assert.Len(t, f.router.canceled, 2)
	assert.Len(t, f.router.sent, 2)
	all, err := f.pairStore.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.False(t, f.notifier.has(notify.EventSingleLeg))

	require.Len(t, f.journal.records, 1)
	assert.Zero(t, f.journal.records[0].Profit)
}

func TestTradeUnevenFillTriggersSingleLeg(t *testing.T) {
	f := newTraderFixture(traderConfig())
	// The buy on alpha fills fully, the sell on beta only half.
	f.router.fills["alpha"] = 1
	f.router.fills["beta"] = 0.5

	require.NoError(t, f.trader.Trade(context.Background(), opportunity(1), false))

	assert.True(t, f.notifier.has(notify.EventSingleLeg))

	// The recovery order reverses the overfilled buy: sell 0.5 on alpha with
	// the limit moved 5% down.
	require.Len(t, f.router.sent, 3)
	recovery := f.router.sent[2]
	assert.Equal(t, domain.Broker("alpha"), recovery.Broker)
	assert.Equal(t, domain.OrderSideSell, recovery.Side)
	assert.Equal(t, 0.5, recovery.Size)
	assert.Equal(t, 95.0, recovery.Price)
	assert.True(t, recovery.Filled())

	// Nothing is stored: the pair never completed.
	all, err := f.pairStore.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	// The journal sees all three orders.
	require.Len(t, f.journal.records, 1)
	assert.Len(t, f.journal.records[0].Orders, 3)
}

func TestTradeSendFailureCancelsHealthyLeg(t *testing.T) {
	f := newTraderFixture(traderConfig())
	f.router.sendErr["beta"] = errors.New("venue down")

	err := f.trader.Trade(context.Background(), opportunity(1), false)
	require.Error(t, err)

	// The leg that reached its broker gets canceled.
	require.Len(t, f.router.sent, 1)
	assert.Len(t, f.router.canceled, 1)
	assert.Equal(t, domain.Broker("alpha"), f.router.canceled[0].Broker)
	assert.Empty(t, f.journal.records)
}

func TestTradeSendFailureKeepsSlowLegInFlight(t *testing.T) {
	f := newTraderFixture(traderConfig())
	// Beta rejects instantly while alpha's submission is still in flight.
	// Alpha's send must still reach its broker and only then be canceled,
	// rather than being aborted by the sibling's failure.
	f.router.sendErr["beta"] = errors.New("venue down")
	f.router.sendDelay["alpha"] = 20 * time.Millisecond

	err := f.trader.Trade(context.Background(), opportunity(1), false)
	require.Error(t, err)

	require.Len(t, f.router.sent, 1)
	assert.Equal(t, domain.Broker("alpha"), f.router.sent[0].Broker)
	require.Len(t, f.router.canceled, 1)
	assert.Equal(t, domain.Broker("alpha"), f.router.canceled[0].Broker)
}

func TestTradeAppliesAcceptablePriceRange(t *testing.T) {
	cfg := traderConfig()
	priceRange := 1.0
	cfg.AcceptablePriceRange = &priceRange
	f := newTraderFixture(cfg)
	f.router.fills["alpha"] = 1
	f.router.fills["beta"] = 1

	require.NoError(t, f.trader.Trade(context.Background(), opportunity(1), false))

	require.Len(t, f.router.sent, 2)
	for _, o := range f.router.sent {
		switch o.Side {
		case domain.OrderSideBuy:
			assert.Equal(t, 101.0, o.Price)
		case domain.OrderSideSell:
			assert.InDelta(t, 99.99, o.Price, 1e-9)
		}
	}
}
