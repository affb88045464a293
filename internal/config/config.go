// Package config defines the engine configuration, its defaults and
// validation, and a runtime store that hands out immutable snapshots.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by R2_* environment variables.
type Config struct {
	Symbol   string `toml:"symbol"`
	DemoMode bool   `toml:"demo_mode"`
	LogLevel string `toml:"log_level"`

	PriceMergeSize           float64  `toml:"price_merge_size"`
	MaxSize                  float64  `toml:"max_size"`
	MinSize                  float64  `toml:"min_size"`
	MaxTargetVolumePercent   *float64 `toml:"max_target_volume_percent"`
	AcceptablePriceRange     *float64 `toml:"acceptable_price_range"`
	IterationInterval        duration `toml:"iteration_interval"`
	PositionRefreshInterval  duration `toml:"position_refresh_interval"`
	SleepAfterSend           duration `toml:"sleep_after_send"`
	MaxRetryCount            int      `toml:"max_retry_count"`
	OrderStatusCheckInterval duration `toml:"order_status_check_interval"`

	MaxNetExposure         float64  `toml:"max_net_exposure"`
	MinTargetProfit        float64  `toml:"min_target_profit"`
	MinTargetProfitPercent *float64 `toml:"min_target_profit_percent"`
	MaxTargetProfit        *float64 `toml:"max_target_profit"`
	MaxTargetProfitPercent *float64 `toml:"max_target_profit_percent"`

	MinExitTargetProfit        *float64 `toml:"min_exit_target_profit"`
	MinExitTargetProfitPercent *float64 `toml:"min_exit_target_profit_percent"`
	ExitNetProfitRatio         *float64 `toml:"exit_net_profit_ratio"`

	// FatalErrors lists substrings that, when matched against a trade error,
	// stop the orchestration loop entirely.
	FatalErrors []string `toml:"fatal_errors"`

	Stability   StabilityConfig   `toml:"stability"`
	OnSingleLeg OnSingleLegConfig `toml:"on_single_leg"`

	Brokers []BrokerConfig `toml:"brokers"`

	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Notify   NotifyConfig   `toml:"notify"`
}

// BrokerConfig holds the per-venue trading parameters.
type BrokerConfig struct {
	Name              string  `toml:"name"`
	Enabled           bool    `toml:"enabled"`
	Adapter           string  `toml:"adapter"`
	Key               string  `toml:"key"`
	Secret            string  `toml:"secret"`
	CommissionPercent float64 `toml:"commission_percent"`
	CashMarginType    string  `toml:"cash_margin_type"`
	LeverageLevel     float64 `toml:"leverage_level"`
	MaxLongPosition   float64 `toml:"max_long_position"`
	MaxShortPosition  float64 `toml:"max_short_position"`
	// NoTradePeriods lists [start, end] ISO timestamp pairs during which the
	// broker is excluded from quote aggregation.
	NoTradePeriods [][]string `toml:"no_trade_periods"`
}

// StabilityConfig parameterizes the per-broker circuit breaker.
type StabilityConfig struct {
	Threshold        int      `toml:"threshold"`
	RecoveryInterval duration `toml:"recovery_interval"`
}

// SingleLegAction selects how leftover one-sided exposure is handled.
type SingleLegAction string

const (
	SingleLegCancel  SingleLegAction = "Cancel"
	SingleLegReverse SingleLegAction = "Reverse"
	SingleLegProceed SingleLegAction = "Proceed"
)

// OnSingleLegConfig configures residual-exposure recovery.
type OnSingleLegConfig struct {
	Action       SingleLegAction  `toml:"action"`
	ActionOnExit SingleLegAction  `toml:"action_on_exit"`
	Options      SingleLegOptions `toml:"options"`
}

// SingleLegOptions tunes the recovery order.
type SingleLegOptions struct {
	LimitMovePercent float64  `toml:"limit_move_percent"`
	TTL              duration `toml:"ttl"`
}

// RedisConfig holds Redis connection parameters for the active-pair store and
// the event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the trade journal.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	RunMigration bool   `toml:"run_migration"`
}

// S3Config holds object storage parameters for the spread-stat archiver.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	Prefix         string   `toml:"prefix"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Interval       duration `toml:"interval"`
}

// MonitorConfig holds the WebSocket monitor server parameters.
type MonitorConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "100ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Dur constructs a config duration, mainly for tests and defaults.
func Dur(d time.Duration) duration { return duration{d} }

// Defaults returns a Config populated with the built-in default values.
func Defaults() Config {
	return Config{
		Symbol:                   "BTC/JPY",
		DemoMode:                 true,
		LogLevel:                 "info",
		PriceMergeSize:           100,
		MaxSize:                  0.01,
		MinSize:                  0.01,
		IterationInterval:        Dur(3 * time.Second),
		PositionRefreshInterval:  Dur(5 * time.Second),
		SleepAfterSend:           Dur(5 * time.Second),
		MaxRetryCount:            10,
		OrderStatusCheckInterval: Dur(3 * time.Second),
		MaxNetExposure:           0.1,
		MinTargetProfit:          0,
		FatalErrors:              []string{"insufficient funds", "Insufficient funds", "too small", "Nonce is too small"},
		Stability: StabilityConfig{
			Threshold:        8,
			RecoveryInterval: Dur(5 * time.Minute),
		},
		OnSingleLeg: OnSingleLegConfig{
			Action:       SingleLegCancel,
			ActionOnExit: SingleLegCancel,
			Options: SingleLegOptions{
				LimitMovePercent: 5,
				TTL:              Dur(3 * time.Second),
			},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			PoolMaxConns: 4,
			RunMigration: true,
		},
		S3: S3Config{
			Region:   "us-east-1",
			Prefix:   "spreadstats",
			Interval: Dur(time.Minute),
		},
		Monitor: MonitorConfig{
			Port: 8720,
		},
		Notify: NotifyConfig{
			Events: []string{"pair_opened", "pair_closed", "single_leg", "fatal_error"},
		},
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSingleLegActions enumerates the accepted on_single_leg actions.
var validSingleLegActions = map[SingleLegAction]bool{
	SingleLegCancel:  true,
	SingleLegReverse: true,
	SingleLegProceed: true,
}

// Validate checks the Config for invalid or missing values and returns a
// combined error describing every problem found. A non-nil error is fatal at
// startup; the process must not proceed with a broken configuration.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Symbol) == "" || !strings.Contains(c.Symbol, "/") {
		errs = append(errs, fmt.Sprintf("symbol must look like BASE/QUOTE, got %q", c.Symbol))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.PriceMergeSize <= 0 {
		errs = append(errs, "price_merge_size must be > 0")
	}
	if c.MinSize <= 0 {
		errs = append(errs, "min_size must be > 0")
	}
	if c.MaxSize < c.MinSize {
		errs = append(errs, "max_size must be >= min_size")
	}
	if c.MaxTargetVolumePercent != nil && (*c.MaxTargetVolumePercent <= 0 || *c.MaxTargetVolumePercent > 100) {
		errs = append(errs, "max_target_volume_percent must be in (0, 100]")
	}
	if c.IterationInterval.Duration <= 0 {
		errs = append(errs, "iteration_interval must be positive")
	}
	if c.PositionRefreshInterval.Duration <= 0 {
		errs = append(errs, "position_refresh_interval must be positive")
	}
	if c.MaxRetryCount < 1 {
		errs = append(errs, "max_retry_count must be >= 1")
	}
	if c.OrderStatusCheckInterval.Duration <= 0 {
		errs = append(errs, "order_status_check_interval must be positive")
	}
	if c.MaxNetExposure < 0 {
		errs = append(errs, "max_net_exposure must be >= 0")
	}
	if c.Stability.Threshold < 1 || c.Stability.Threshold > 10 {
		errs = append(errs, "stability.threshold must be 1-10")
	}
	if c.Stability.RecoveryInterval.Duration <= 0 {
		errs = append(errs, "stability.recovery_interval must be positive")
	}
	if !validSingleLegActions[c.OnSingleLeg.Action] {
		errs = append(errs, fmt.Sprintf("on_single_leg.action must be Cancel, Reverse or Proceed, got %q", c.OnSingleLeg.Action))
	}
	if c.OnSingleLeg.ActionOnExit != "" && !validSingleLegActions[c.OnSingleLeg.ActionOnExit] {
		errs = append(errs, fmt.Sprintf("on_single_leg.action_on_exit must be Cancel, Reverse or Proceed, got %q", c.OnSingleLeg.ActionOnExit))
	}

	if len(c.Brokers) < 2 {
		errs = append(errs, "at least two brokers must be configured")
	}
	seen := map[string]bool{}
	enabled := 0
	for i, b := range c.Brokers {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, fmt.Sprintf("brokers[%d]: name must not be empty", i))
			continue
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Sprintf("brokers[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.Enabled {
			enabled++
		}
		if b.CommissionPercent < 0 {
			errs = append(errs, fmt.Sprintf("brokers[%d]: commission_percent must be >= 0", i))
		}
		if b.MaxLongPosition < 0 || b.MaxShortPosition < 0 {
			errs = append(errs, fmt.Sprintf("brokers[%d]: position limits must be >= 0", i))
		}
		for _, p := range b.NoTradePeriods {
			if len(p) != 2 {
				errs = append(errs, fmt.Sprintf("brokers[%d]: no_trade_periods entries must be [start, end] pairs", i))
			}
		}
	}
	if enabled < 2 {
		errs = append(errs, "at least two brokers must be enabled")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, "postgres: dsn must not be empty when enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		errs = append(errs, fmt.Sprintf("monitor: port must be 1-65535, got %d", c.Monitor.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// FindBroker returns the configuration for the named broker.
func (c *Config) FindBroker(name string) (BrokerConfig, bool) {
	for _, b := range c.Brokers {
		if b.Name == name {
			return b, true
		}
	}
	return BrokerConfig{}, false
}

// CommissionPercent returns the commission rate for the named broker, or zero
// when the broker is unknown.
func (c *Config) CommissionPercent(name string) float64 {
	b, ok := c.FindBroker(name)
	if !ok {
		return 0
	}
	return b.CommissionPercent
}

// HasExitThresholds reports whether any exit-related threshold is configured;
// when none is, the searcher skips the close check entirely.
func (c *Config) HasExitThresholds() bool {
	return c.MinExitTargetProfit != nil || c.MinExitTargetProfitPercent != nil || c.ExitNetProfitRatio != nil
}

// BaseCurrency returns the base currency of the configured symbol
// (e.g. "BTC" for "BTC/JPY").
func (c *Config) BaseCurrency() string {
	base, _, _ := strings.Cut(c.Symbol, "/")
	return base
}
