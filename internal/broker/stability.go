// Package broker routes generic order operations to per-venue adapters and
// tracks each venue's reliability with a circuit breaker.
package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

// maxStabilityScore is the score each broker starts with and recovers toward.
const maxStabilityScore = 10

// StabilityTracker is a per-broker circuit breaker. Every observed failure
// lowers the broker's score by one; a broker is stable while its score stays
// at or above the configured threshold. Scores recover by one point per
// recovery interval so a transient blip does not exclude a broker forever.
type StabilityTracker struct {
	cfgStore *config.Store
	logger   *slog.Logger

	mu     sync.Mutex
	scores map[domain.Broker]int
}

// NewStabilityTracker creates a tracker with every configured broker at the
// maximum score.
func NewStabilityTracker(cfgStore *config.Store, logger *slog.Logger) *StabilityTracker {
	t := &StabilityTracker{
		cfgStore: cfgStore,
		logger:   logger.With(slog.String("component", "stability_tracker")),
		scores:   make(map[domain.Broker]int),
	}
	for _, b := range cfgStore.Config().Brokers {
		t.scores[b.Name] = maxStabilityScore
	}
	return t
}

// Decrement lowers the broker's score after an observed failure. The score is
// clamped at zero.
func (t *StabilityTracker) Decrement(broker domain.Broker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	score, ok := t.scores[broker]
	if !ok {
		score = maxStabilityScore
	}
	if score > 0 {
		score--
	}
	t.scores[broker] = score
	t.logger.Debug("stability decremented",
		slog.String("broker", broker),
		slog.Int("score", score),
	)
}

// Stability returns the broker's current score. Unknown brokers report the
// maximum score.
func (t *StabilityTracker) Stability(broker domain.Broker) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	score, ok := t.scores[broker]
	if !ok {
		return maxStabilityScore
	}
	return score
}

// IsStable reports whether the broker's score is at or above the configured
// threshold. Unstable brokers must not be targeted by new trades.
func (t *StabilityTracker) IsStable(broker domain.Broker) bool {
	return t.Stability(broker) >= t.cfgStore.Config().Stability.Threshold
}

// Run recovers one point of every broker's score per recovery interval until
// the context is cancelled.
func (t *StabilityTracker) Run(ctx context.Context) error {
	interval := t.cfgStore.Config().Stability.RecoveryInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.recover()
		}
	}
}

func (t *StabilityTracker) recover() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for broker, score := range t.scores {
		if score < maxStabilityScore {
			t.scores[broker] = score + 1
		}
	}
}
