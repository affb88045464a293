package quote

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFoldMergesSameBucket(t *testing.T) {
	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Ask, Price: 100_001, Volume: 0.5},
		{Broker: "alpha", Side: domain.Ask, Price: 100_099, Volume: 0.3},
	}

	folded := Fold(quotes, 100)
	assert.Len(t, folded, 1)
	assert.Equal(t, 100_100.0, folded[0].Price)
	assert.InDelta(t, 0.8, folded[0].Volume, 1e-9)
}

func TestFoldRoundsAsksUpAndBidsDown(t *testing.T) {
	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Ask, Price: 100_050, Volume: 1},
		{Broker: "alpha", Side: domain.Bid, Price: 100_050, Volume: 1},
	}

	folded := Fold(quotes, 100)
	assert.Len(t, folded, 2)
	for _, q := range folded {
		switch q.Side {
		case domain.Ask:
			assert.Equal(t, 100_100.0, q.Price)
		case domain.Bid:
			assert.Equal(t, 100_000.0, q.Price)
		}
	}
}

func TestFoldKeepsBrokersAndSidesApart(t *testing.T) {
	quotes := []domain.Quote{
		{Broker: "alpha", Side: domain.Ask, Price: 100_000, Volume: 1},
		{Broker: "beta", Side: domain.Ask, Price: 100_000, Volume: 1},
		{Broker: "alpha", Side: domain.Bid, Price: 100_000, Volume: 1},
	}

	folded := Fold(quotes, 100)
	assert.Len(t, folded, 3)
}

func TestFoldSortsDeterministically(t *testing.T) {
	quotes := []domain.Quote{
		{Broker: "beta", Side: domain.Bid, Price: 100_200, Volume: 1},
		{Broker: "alpha", Side: domain.Ask, Price: 100_300, Volume: 1},
		{Broker: "alpha", Side: domain.Ask, Price: 100_100, Volume: 1},
	}

	folded := Fold(quotes, 100)
	assert.Equal(t, domain.Broker("alpha"), folded[0].Broker)
	assert.Equal(t, 100_100.0, folded[0].Price)
	assert.Equal(t, 100_300.0, folded[1].Price)
	assert.Equal(t, domain.Broker("beta"), folded[2].Broker)
}

func TestEligibleBrokersSkipsDisabled(t *testing.T) {
	cfg := &config.Config{
		Brokers: []config.BrokerConfig{
			{Name: "alpha", Enabled: true},
			{Name: "beta", Enabled: false},
		},
	}

	names := eligibleBrokers(cfg, time.Now(), discardLogger())
	assert.Equal(t, []domain.Broker{"alpha"}, names)
}

func TestInNoTradePeriod(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	b := config.BrokerConfig{
		Name: "alpha",
		NoTradePeriods: [][]string{
			{"2026-01-10T11:00:00Z", "2026-01-10T13:00:00Z"},
		},
	}
	assert.True(t, inNoTradePeriod(b, now, discardLogger()))
	assert.False(t, inNoTradePeriod(b, now.Add(2*time.Hour), discardLogger()))

	malformed := config.BrokerConfig{
		Name:           "beta",
		NoTradePeriods: [][]string{{"not-a-time", "also-not"}},
	}
	assert.False(t, inNoTradePeriod(malformed, now, discardLogger()))
}
