// Package searcher scans each quote snapshot for an actionable opportunity,
// checking open pairs for closability before looking for a fresh entry.
package searcher

import (
	"context"
	"log/slog"

	"github.com/nh-chitose/r2-re/internal/analysis"
	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
	"github.com/nh-chitose/r2-re/internal/event"
)

// PositionMapper supplies the current per-broker position snapshot.
type PositionMapper interface {
	Map() map[domain.Broker]domain.BrokerPosition
}

// Result is the outcome of one search cycle. When Closable is true the
// opportunity unwinds ClosablePair, which has already been removed from the
// active pair store.
type Result struct {
	Found        bool
	Closable     bool
	ClosableKey  string
	ClosablePair domain.OrderPair
	Analysis     domain.SpreadAnalysisResult
}

// pairSummary is the per-pair line published on the activePairRefresh channel.
type pairSummary struct {
	Key          string   `json:"key"`
	Pair         string   `json:"pair"`
	TargetProfit *float64 `json:"targetProfit"`
	Error        string   `json:"error,omitempty"`
}

// Searcher combines the analyzer, the limit policy and the active pair store
// into the per-cycle opportunity search.
type Searcher struct {
	cfgStore  *config.Store
	analyzer  *analysis.Analyzer
	factory   *analysis.CheckerFactory
	positions PositionMapper
	pairStore domain.ActivePairStore
	reporter  *event.Reporter
	logger    *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(
	cfgStore *config.Store,
	analyzer *analysis.Analyzer,
	factory *analysis.CheckerFactory,
	positions PositionMapper,
	pairStore domain.ActivePairStore,
	reporter *event.Reporter,
	logger *slog.Logger,
) *Searcher {
	return &Searcher{
		cfgStore:  cfgStore,
		analyzer:  analyzer,
		factory:   factory,
		positions: positions,
		pairStore: pairStore,
		reporter:  reporter,
		logger:    logger.With(slog.String("component", "opportunity_searcher")),
	}
}

// Search looks for a closable open pair first, then for a fresh entry.
// A Result with Found false means no opportunity this cycle; that is the
// normal case and not an error.
func (s *Searcher) Search(ctx context.Context, quotes []domain.Quote) (Result, error) {
	positionMap := s.positions.Map()

	if s.cfgStore.Config().HasExitThresholds() {
		if result, found := s.searchClosable(ctx, quotes, positionMap); found {
			return result, nil
		}
	}
	return s.searchOpen(ctx, quotes, positionMap)
}

// searchClosable evaluates every open pair against the current quotes and
// returns the first one whose unwind passes the exit limit checks. The winning
// pair is deleted from the store before it is returned, so a crash mid-close
// loses the pair record rather than double-closing it.
func (s *Searcher) searchClosable(
	ctx context.Context,
	quotes []domain.Quote,
	positionMap map[domain.Broker]domain.BrokerPosition,
) (Result, bool) {
	pairs, err := s.pairStore.GetAll(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load active pairs", slog.String("error", err.Error()))
		return Result{}, false
	}

	summaries := make([]pairSummary, 0, len(pairs))
	var winner *Result
	for _, kp := range pairs {
		pair := kp.Value
		summary := pairSummary{Key: kp.Key, Pair: pair.String()}

		result, err := s.analyzer.Analyze(quotes, positionMap, &pair)
		if err != nil {
			summary.Error = err.Error()
			summaries = append(summaries, summary)
			continue
		}
		profit := result.TargetProfit
		summary.TargetProfit = &profit
		summaries = append(summaries, summary)
		s.logger.InfoContext(ctx, "open pair",
			slog.String("pair", pair.String()),
			slog.Float64("closeProfit", result.TargetProfit))

		if winner != nil {
			continue
		}
		if check := s.factory.Create(result, &pair).Check(); check.Success {
			winner = &Result{
				Found:        true,
				Closable:     true,
				ClosableKey:  kp.Key,
				ClosablePair: pair,
				Analysis:     result,
			}
		}
	}
	s.reporter.ActivePairRefresh(ctx, summaries)

	if winner == nil {
		return Result{}, false
	}
	if err := s.pairStore.Del(ctx, winner.ClosableKey); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove closable pair from store",
			slog.String("key", winner.ClosableKey),
			slog.String("error", err.Error()))
		return Result{}, false
	}
	s.logger.InfoContext(ctx, "found closable pair",
		slog.String("key", winner.ClosableKey),
		slog.String("pair", winner.ClosablePair.String()))
	return *winner, true
}

func (s *Searcher) searchOpen(
	ctx context.Context,
	quotes []domain.Quote,
	positionMap map[domain.Broker]domain.BrokerPosition,
) (Result, error) {
	result, err := s.analyzer.Analyze(quotes, positionMap, nil)
	if err != nil {
		s.logger.DebugContext(ctx, "no entry candidate", slog.String("reason", err.Error()))
		return Result{}, nil
	}
	s.reporter.SpreadAnalysisDone(ctx, result)
	s.logger.InfoContext(ctx, "spread analysis",
		slog.Float64("invertedSpread", result.InvertedSpread),
		slog.Float64("availableVolume", result.AvailableVolume),
		slog.Float64("targetVolume", result.TargetVolume),
		slog.Float64("targetProfit", result.TargetProfit),
		slog.Float64("profitPercent", result.ProfitPercentAgainstNotional))

	check := s.factory.Create(result, nil).Check()
	s.reporter.LimitCheckDone(ctx, check)
	if !check.Success {
		s.logger.InfoContext(ctx, "opportunity rejected",
			slog.String("reason", check.Reason),
			slog.String("message", check.Message))
		return Result{}, nil
	}
	return Result{Found: true, Analysis: result}, nil
}
