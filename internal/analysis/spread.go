// Package analysis holds the pure computations of the engine: spread/profit
// analysis over quote snapshots and the pluggable limit-check policy applied
// to its results.
package analysis

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

// Analysis failures. These are expected trading conditions, not bugs: the
// searcher treats them as "no opportunity this cycle".
var (
	ErrEmptyPositionMap   = errors.New("analysis: position map is empty")
	ErrInvalidClosingPair = errors.New("analysis: closing pair legs differ in size")
	ErrNoBestAsk          = errors.New("analysis: no eligible ask quote")
	ErrNoBestBid          = errors.New("analysis: no eligible bid quote")
)

// Analyzer computes the best actionable spread from a quote snapshot and the
// current position constraints. It holds no mutable state beyond config.
type Analyzer struct {
	cfgStore *config.Store
	logger   *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfgStore *config.Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfgStore: cfgStore,
		logger:   logger.With(slog.String("component", "spread_analyzer")),
	}
}

// Analyze finds the best eligible ask and bid and derives the target volume
// and expected profit. When closing is non-nil the candidates are restricted
// to quotes that unwind that pair's legs, and the target volume is forced to
// the pair's size. Missing best quotes are reported as errors before any
// arithmetic happens.
func (a *Analyzer) Analyze(
	quotes []domain.Quote,
	positionMap map[domain.Broker]domain.BrokerPosition,
	closing *domain.OrderPair,
) (domain.SpreadAnalysisResult, error) {
	if closing != nil && closing[0].Size != closing[1].Size {
		return domain.SpreadAnalysisResult{}, ErrInvalidClosingPair
	}
	if len(positionMap) == 0 {
		return domain.SpreadAnalysisResult{}, ErrEmptyPositionMap
	}
	cfg := a.cfgStore.Config()

	minVolume := cfg.MinSize
	if closing != nil {
		minVolume = closing[0].Size
	}
	// When a maximum target-volume percentage is configured, a quote must
	// cover proportionally more than the size we intend to take from it.
	if cfg.MaxTargetVolumePercent != nil {
		minVolume *= math.Floor(100 / *cfg.MaxTargetVolumePercent)
	}

	var filtered []domain.Quote
	for _, q := range quotes {
		if !allowedByPosition(q, positionMap) {
			continue
		}
		if q.Volume < minVolume {
			continue
		}
		filtered = append(filtered, q)
	}
	if closing != nil {
		filtered = filterForClosing(filtered, *closing)
	}

	best := bestQuotes(filtered)
	if best.bid == nil {
		a.logger.Warn("no best bid found")
		return domain.SpreadAnalysisResult{}, ErrNoBestBid
	}
	if best.ask == nil {
		a.logger.Warn("no best ask found")
		return domain.SpreadAnalysisResult{}, ErrNoBestAsk
	}
	bid, ask := *best.bid, *best.ask

	invertedSpread := bid.Price - ask.Price
	availableVolume := domain.FloorTo(math.Min(bid.Volume, ask.Volume), domain.LotPrecision)
	targetVolume := math.Min(
		math.Min(availableVolume, cfg.MaxSize),
		math.Min(positionMap[bid.Broker].AllowedShortSize, positionMap[ask.Broker].AllowedLongSize),
	)
	targetVolume = domain.FloorTo(targetVolume, domain.LotPrecision)
	if closing != nil {
		targetVolume = closing[0].Size
	}

	commission := a.totalCommission([]domain.Quote{bid, ask}, targetVolume)
	targetProfit := math.Round(invertedSpread*targetVolume - commission)
	midNotional := (ask.Price + bid.Price) / 2 * targetVolume
	profitPercent := domain.RoundTo(targetProfit/midNotional*100, domain.LotPrecision)

	result := domain.SpreadAnalysisResult{
		Bid:                          bid,
		Ask:                          ask,
		InvertedSpread:               invertedSpread,
		AvailableVolume:              availableVolume,
		TargetVolume:                 targetVolume,
		TargetProfit:                 targetProfit,
		ProfitPercentAgainstNotional: profitPercent,
	}
	a.logger.Debug("analysis done")
	return result, nil
}

// GetSpreadStat computes a telemetry-only snapshot: per-broker best quotes and
// best-case/worst-case estimates across brokers. It returns nil when either
// side of the market is empty. It never feeds trading decisions.
func (a *Analyzer) GetSpreadStat(quotes []domain.Quote) *domain.SpreadStat {
	cfg := a.cfgStore.Config()
	var filtered []domain.Quote
	for _, q := range quotes {
		if q.Volume >= cfg.MinSize {
			filtered = append(filtered, q)
		}
	}
	var hasAsk, hasBid bool
	for _, q := range filtered {
		switch q.Side {
		case domain.Ask:
			hasAsk = true
		case domain.Bid:
			hasBid = true
		}
	}
	if !hasAsk || !hasBid {
		return nil
	}

	byBrokerQuotes := make(map[domain.Broker][]domain.Quote)
	for _, q := range filtered {
		byBrokerQuotes[q.Broker] = append(byBrokerQuotes[q.Broker], q)
	}
	byBroker := make(map[domain.Broker]domain.BrokerSpread, len(byBrokerQuotes))
	var flattened []domain.Quote
	for name, qs := range byBrokerQuotes {
		best := bestQuotes(qs)
		entry := domain.BrokerSpread{Ask: best.ask, Bid: best.bid}
		if best.ask != nil && best.bid != nil {
			spread := best.ask.Price - best.bid.Price
			entry.Spread = &spread
		}
		byBroker[name] = entry
		if best.ask != nil {
			flattened = append(flattened, *best.ask)
		}
		if best.bid != nil {
			flattened = append(flattened, *best.bid)
		}
	}

	best := bestQuotes(flattened)
	worst := worstQuotes(flattened)
	return &domain.SpreadStat{
		Timestamp: time.Now().UTC(),
		ByBroker:  byBroker,
		BestCase:  a.estimate(*best.ask, *best.bid),
		WorstCase: a.estimate(*worst.ask, *worst.bid),
	}
}

// estimate is the spread-stat variant of Analyze: no position constraints.
func (a *Analyzer) estimate(ask, bid domain.Quote) domain.SpreadAnalysisResult {
	cfg := a.cfgStore.Config()
	invertedSpread := bid.Price - ask.Price
	availableVolume := domain.FloorTo(math.Min(bid.Volume, ask.Volume), domain.LotPrecision)
	targetVolume := domain.FloorTo(math.Min(availableVolume, cfg.MaxSize), domain.LotPrecision)
	commission := a.totalCommission([]domain.Quote{bid, ask}, targetVolume)
	targetProfit := math.Round(invertedSpread*targetVolume - commission)
	midNotional := (ask.Price + bid.Price) / 2 * targetVolume
	return domain.SpreadAnalysisResult{
		Bid:                          bid,
		Ask:                          ask,
		InvertedSpread:               invertedSpread,
		AvailableVolume:              availableVolume,
		TargetVolume:                 targetVolume,
		TargetProfit:                 targetProfit,
		ProfitPercentAgainstNotional: domain.RoundTo(targetProfit/midNotional*100, domain.LotPrecision),
	}
}

func (a *Analyzer) totalCommission(quotes []domain.Quote, targetVolume float64) float64 {
	cfg := a.cfgStore.Config()
	var sum float64
	for _, q := range quotes {
		sum += domain.CalcCommission(q.Price, targetVolume, cfg.CommissionPercent(q.Broker))
	}
	return sum
}

// allowedByPosition reports whether the quoted broker's position permissions
// let us trade against this quote: taking an ask means going long there,
// hitting a bid means going short.
func allowedByPosition(q domain.Quote, positionMap map[domain.Broker]domain.BrokerPosition) bool {
	pos, ok := positionMap[q.Broker]
	if !ok {
		return false
	}
	if q.Side == domain.Bid {
		return pos.ShortAllowed
	}
	return pos.LongAllowed
}

// filterForClosing restricts candidates to quotes that can unwind one of the
// closing pair's legs: same broker, opposite book side, enough volume.
func filterForClosing(quotes []domain.Quote, pair domain.OrderPair) []domain.Quote {
	var out []domain.Quote
	for _, q := range quotes {
		for _, leg := range pair {
			if q.Broker == leg.Broker && q.Side == leg.Side.Opposite() && q.Volume >= pair[0].Size {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

type bestPair struct {
	ask *domain.Quote
	bid *domain.Quote
}

// bestQuotes picks the lowest ask and highest bid from the given quotes.
func bestQuotes(quotes []domain.Quote) bestPair {
	ordered := make([]domain.Quote, len(quotes))
	copy(ordered, quotes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Price < ordered[j].Price })

	var best bestPair
	for i := range ordered {
		q := ordered[i]
		if q.Side == domain.Ask && best.ask == nil {
			best.ask = &ordered[i]
		}
		if q.Side == domain.Bid {
			best.bid = &ordered[i]
		}
	}
	return best
}

// worstQuotes picks the highest ask and lowest bid from the given quotes.
func worstQuotes(quotes []domain.Quote) bestPair {
	ordered := make([]domain.Quote, len(quotes))
	copy(ordered, quotes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Price < ordered[j].Price })

	var worst bestPair
	for i := range ordered {
		q := ordered[i]
		if q.Side == domain.Ask {
			worst.ask = &ordered[i]
		}
		if q.Side == domain.Bid && worst.bid == nil {
			worst.bid = &ordered[i]
		}
	}
	return worst
}
