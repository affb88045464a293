package analysis

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/nh-chitose/r2-re/internal/config"
	"github.com/nh-chitose/r2-re/internal/domain"
)

// Reason tags returned by the limit checkers. The searcher logs and reports
// these; the monitor stream shows them to operators.
const (
	ReasonDemoMode        = "Demo mode"
	ReasonMaxNetExposure  = "Max net exposure breached"
	ReasonSpreadNotProfit = "Spread not inverted"
	ReasonVolumeTooSmall  = "Target volume too small"
	ReasonVolumeTooLarge  = "Max target volume percent breached"
	ReasonProfitTooSmall  = "Too small profit"
	ReasonProfitTooLarge  = "Too large profit"
)

// LimitChecker decides whether an analysis result may be acted on.
type LimitChecker interface {
	Check() domain.LimitCheckResult
}

// NetExposureFunc supplies the current net exposure across all brokers.
type NetExposureFunc func() float64

// CheckerFactory builds the limit-check chain for a given analysis result.
// Opportunities for opening a new pair and for closing an existing one get
// different profit thresholds.
type CheckerFactory struct {
	cfgStore    *config.Store
	netExposure NetExposureFunc
	logger      *slog.Logger
}

// NewCheckerFactory creates a CheckerFactory.
func NewCheckerFactory(cfgStore *config.Store, netExposure NetExposureFunc, logger *slog.Logger) *CheckerFactory {
	return &CheckerFactory{
		cfgStore:    cfgStore,
		netExposure: netExposure,
		logger:      logger.With(slog.String("component", "limit_checker")),
	}
}

// Create builds the checker chain for result. When closing is non-nil the
// exit thresholds apply instead of the entry ones.
func (f *CheckerFactory) Create(result domain.SpreadAnalysisResult, closing *domain.OrderPair) LimitChecker {
	cfg := f.cfgStore.Config()
	checkers := []LimitChecker{
		&maxNetExposureChecker{cfg: cfg, netExposure: f.netExposure},
		&invertedSpreadChecker{result: result},
		&targetVolumeChecker{cfg: cfg, result: result, closing: closing},
		&minProfitChecker{cfg: cfg, result: result, closing: closing},
		&maxProfitChecker{cfg: cfg, result: result},
		&demoModeChecker{cfg: cfg},
	}
	return &chainChecker{checkers: checkers, logger: f.logger}
}

// chainChecker runs sub-checkers in order and stops at the first failure.
type chainChecker struct {
	checkers []LimitChecker
	logger   *slog.Logger
}

func (c *chainChecker) Check() domain.LimitCheckResult {
	for _, sub := range c.checkers {
		if r := sub.Check(); !r.Success {
			c.logger.Debug("limit check failed",
				slog.String("reason", r.Reason),
				slog.String("message", r.Message))
			return r
		}
	}
	return domain.LimitCheckResult{Success: true}
}

type maxNetExposureChecker struct {
	cfg         *config.Config
	netExposure NetExposureFunc
}

func (c *maxNetExposureChecker) Check() domain.LimitCheckResult {
	exposure := c.netExposure()
	if math.Abs(exposure) > c.cfg.MaxNetExposure {
		return fail(ReasonMaxNetExposure,
			fmt.Sprintf("net exposure %.3f exceeds limit %.3f", exposure, c.cfg.MaxNetExposure))
	}
	return ok()
}

type invertedSpreadChecker struct {
	result domain.SpreadAnalysisResult
}

func (c *invertedSpreadChecker) Check() domain.LimitCheckResult {
	if c.result.InvertedSpread <= 0 {
		return fail(ReasonSpreadNotProfit,
			fmt.Sprintf("inverted spread is %v", c.result.InvertedSpread))
	}
	return ok()
}

type targetVolumeChecker struct {
	cfg     *config.Config
	result  domain.SpreadAnalysisResult
	closing *domain.OrderPair
}

func (c *targetVolumeChecker) Check() domain.LimitCheckResult {
	// A closing pair trades exactly its own size, which may legitimately be
	// below the current min_size after a config change.
	if c.closing != nil {
		if c.result.TargetVolume <= 0 {
			return fail(ReasonVolumeTooSmall, "closing pair has zero size")
		}
		return ok()
	}
	if c.result.TargetVolume < c.cfg.MinSize {
		return fail(ReasonVolumeTooSmall,
			fmt.Sprintf("target volume %v is below min size %v", c.result.TargetVolume, c.cfg.MinSize))
	}
	if c.cfg.MaxTargetVolumePercent != nil && c.result.AvailableVolume > 0 {
		pct := c.result.TargetVolume / c.result.AvailableVolume * 100
		if pct > *c.cfg.MaxTargetVolumePercent {
			return fail(ReasonVolumeTooLarge,
				fmt.Sprintf("target volume is %.1f%% of available, limit is %.1f%%", pct, *c.cfg.MaxTargetVolumePercent))
		}
	}
	return ok()
}

type minProfitChecker struct {
	cfg     *config.Config
	result  domain.SpreadAnalysisResult
	closing *domain.OrderPair
}

func (c *minProfitChecker) Check() domain.LimitCheckResult {
	threshold := c.threshold()
	if c.result.TargetProfit < threshold {
		return fail(ReasonProfitTooSmall,
			fmt.Sprintf("target profit %v is below threshold %v", c.result.TargetProfit, threshold))
	}
	return ok()
}

// threshold derives the minimum acceptable profit. For entries it is the
// larger of the absolute and percentage thresholds; for exits the candidates
// are the exit thresholds plus, when exit_net_profit_ratio is set, the amount
// needed on top of the entry profit to reach that ratio of it.
func (c *minProfitChecker) threshold() float64 {
	notional := (c.result.Ask.Price + c.result.Bid.Price) / 2 * c.result.TargetVolume
	if c.closing == nil {
		threshold := c.cfg.MinTargetProfit
		if c.cfg.MinTargetProfitPercent != nil {
			threshold = math.Max(threshold, math.Round(*c.cfg.MinTargetProfitPercent/100*notional))
		}
		return threshold
	}

	var candidates []float64
	if c.cfg.MinExitTargetProfit != nil {
		candidates = append(candidates, *c.cfg.MinExitTargetProfit)
	}
	if c.cfg.MinExitTargetProfitPercent != nil {
		candidates = append(candidates, math.Round(*c.cfg.MinExitTargetProfitPercent/100*notional))
	}
	if c.cfg.ExitNetProfitRatio != nil {
		pair := *c.closing
		entryProfit, _ := domain.CalcProfit(pair[:], c.cfg.CommissionPercent)
		candidates = append(candidates, entryProfit*(*c.cfg.ExitNetProfitRatio/100-1))
	}
	threshold := math.Inf(-1)
	for _, v := range candidates {
		threshold = math.Max(threshold, v)
	}
	return threshold
}

// maxProfitChecker rejects implausibly large profits, which in practice mean a
// bogus quote or a stale book rather than free money.
type maxProfitChecker struct {
	cfg    *config.Config
	result domain.SpreadAnalysisResult
}

func (c *maxProfitChecker) Check() domain.LimitCheckResult {
	limit := math.Inf(1)
	if c.cfg.MaxTargetProfit != nil {
		limit = *c.cfg.MaxTargetProfit
	}
	if c.cfg.MaxTargetProfitPercent != nil {
		notional := (c.result.Ask.Price + c.result.Bid.Price) / 2 * c.result.TargetVolume
		limit = math.Min(limit, math.Round(*c.cfg.MaxTargetProfitPercent/100*notional))
	}
	if c.result.TargetProfit > limit {
		return fail(ReasonProfitTooLarge,
			fmt.Sprintf("target profit %v exceeds limit %v", c.result.TargetProfit, limit))
	}
	return ok()
}

type demoModeChecker struct {
	cfg *config.Config
}

func (c *demoModeChecker) Check() domain.LimitCheckResult {
	if c.cfg.DemoMode {
		return fail(ReasonDemoMode, "opportunity found but demo mode blocks execution")
	}
	return ok()
}

func ok() domain.LimitCheckResult {
	return domain.LimitCheckResult{Success: true}
}

func fail(reason, message string) domain.LimitCheckResult {
	return domain.LimitCheckResult{Success: false, Reason: reason, Message: message}
}
