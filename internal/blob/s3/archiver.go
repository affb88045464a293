package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nh-chitose/r2-re/internal/analysis"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

// SpreadStatArchiver periodically computes spread statistics from the most
// recent quote snapshot and uploads them as JSON objects. The archive is pure
// telemetry; upload failures are logged and skipped.
type SpreadStatArchiver struct {
	cfgStore *config.Store
	analyzer *analysis.Analyzer
	writer   domain.BlobWriter
	logger   *slog.Logger

	mu     sync.Mutex
	latest []domain.Quote
}

// NewSpreadStatArchiver creates a SpreadStatArchiver.
func NewSpreadStatArchiver(
	cfgStore *config.Store,
	analyzer *analysis.Analyzer,
	writer domain.BlobWriter,
	logger *slog.Logger,
) *SpreadStatArchiver {
	return &SpreadStatArchiver{
		cfgStore: cfgStore,
		analyzer: analyzer,
		writer:   writer,
		logger:   logger.With(slog.String("component", "spread_stat_archiver")),
	}
}

// Update replaces the snapshot the next archive tick will use.
func (a *SpreadStatArchiver) Update(quotes []domain.Quote) {
	a.mu.Lock()
	a.latest = quotes
	a.mu.Unlock()
}

// Run archives on the configured interval until the context is cancelled.
func (a *SpreadStatArchiver) Run(ctx context.Context) error {
	interval := a.cfgStore.Config().S3.Interval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.archive(ctx)
		}
	}
}

func (a *SpreadStatArchiver) archive(ctx context.Context) {
	a.mu.Lock()
	quotes := a.latest
	a.mu.Unlock()
	if len(quotes) == 0 {
		return
	}

	stat := a.analyzer.GetSpreadStat(quotes)
	if stat == nil {
		return
	}
	data, err := json.Marshal(stat)
	if err != nil {
		a.logger.WarnContext(ctx, "spread stat marshal failed", slog.String("error", err.Error()))
		return
	}
	key := a.objectKey(stat.Timestamp)
	if err := a.writer.Write(ctx, key, data, "application/json"); err != nil {
		a.logger.WarnContext(ctx, "spread stat upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	a.logger.DebugContext(ctx, "spread stat archived", slog.String("key", key))
}

// objectKey partitions objects by day so bucket listings stay manageable.
func (a *SpreadStatArchiver) objectKey(ts time.Time) string {
	prefix := a.cfgStore.Config().S3.Prefix
	return fmt.Sprintf("%s/%s/%s.json", prefix, ts.Format("2006-01-02"), ts.Format("150405.000"))
}
