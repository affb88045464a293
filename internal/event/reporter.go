// Package event publishes engine events for external observers (dashboard,
// analytics, notifications). Payload shapes mirror the domain types; delivery
// is best effort and never affects trading decisions.
package event

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nh-chitose/r2-re/internal/domain"
)

// Channel names consumed by dashboard and telemetry collaborators.
const (
	ChQuoteUpdated      = "quoteUpdated"
	ChOrderCreated      = "orderCreated"
	ChOrderUpdated      = "orderUpdated"
	ChOrderFinalized    = "orderFinalized"
	ChSpreadAnalysis    = "spreadAnalysisDone"
	ChLimitCheck        = "limitCheckDone"
	ChActivePairRefresh = "activePairRefresh"
	ChStatus            = "status"
)

// Reporter marshals typed events to JSON and publishes them on the bus.
// Publish failures are logged at debug level and otherwise ignored.
type Reporter struct {
	bus    domain.EventBus
	logger *slog.Logger
}

// NewReporter creates a Reporter. A nil bus produces a reporter whose methods
// are all no-ops.
func NewReporter(bus domain.EventBus, logger *slog.Logger) *Reporter {
	return &Reporter{bus: bus, logger: logger.With(slog.String("component", "event_reporter"))}
}

func (r *Reporter) publish(ctx context.Context, channel string, payload any) {
	if r == nil || r.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.DebugContext(ctx, "event marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := r.bus.Publish(ctx, channel, data); err != nil {
		r.logger.DebugContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// QuoteUpdated reports a fresh folded quote snapshot.
func (r *Reporter) QuoteUpdated(ctx context.Context, quotes []domain.Quote) {
	r.publish(ctx, ChQuoteUpdated, quotes)
}

// OrderCreated reports a newly constructed order before submission.
func (r *Reporter) OrderCreated(ctx context.Context, order *domain.Order) {
	r.publish(ctx, ChOrderCreated, order)
}

// OrderUpdated reports an order state change after a broker call.
func (r *Reporter) OrderUpdated(ctx context.Context, order *domain.Order) {
	r.publish(ctx, ChOrderUpdated, order)
}

// OrderFinalized reports an order that reached a terminal status.
func (r *Reporter) OrderFinalized(ctx context.Context, order *domain.Order) {
	r.publish(ctx, ChOrderFinalized, order)
}

// SpreadAnalysisDone reports a completed spread analysis.
func (r *Reporter) SpreadAnalysisDone(ctx context.Context, result domain.SpreadAnalysisResult) {
	r.publish(ctx, ChSpreadAnalysis, result)
}

// LimitCheckDone reports the outcome of a limit policy evaluation.
func (r *Reporter) LimitCheckDone(ctx context.Context, result domain.LimitCheckResult) {
	r.publish(ctx, ChLimitCheck, result)
}

// ActivePairRefresh reports the current open pairs with their summaries.
func (r *Reporter) ActivePairRefresh(ctx context.Context, pairs any) {
	r.publish(ctx, ChActivePairRefresh, pairs)
}

// Status reports a human-readable engine status line.
func (r *Reporter) Status(ctx context.Context, status string) {
	r.publish(ctx, ChStatus, map[string]string{"status": status})
}
