package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies R2_* environment variable overrides, and returns
// the final Config. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known R2_* environment variables and overwrites
// the corresponding Config fields when a variable is set. Operators use these
// to inject secrets and connection strings at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Symbol, "R2_SYMBOL")
	setBool(&cfg.DemoMode, "R2_DEMO_MODE")
	setStr(&cfg.LogLevel, "R2_LOG_LEVEL")
	setDuration(&cfg.IterationInterval, "R2_ITERATION_INTERVAL")

	setBool(&cfg.Redis.Enabled, "R2_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "R2_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "R2_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "R2_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "R2_REDIS_TLS_ENABLED")

	setBool(&cfg.Postgres.Enabled, "R2_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "R2_POSTGRES_DSN")

	setBool(&cfg.S3.Enabled, "R2_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "R2_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "R2_S3_REGION")
	setStr(&cfg.S3.Bucket, "R2_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "R2_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "R2_S3_SECRET_KEY")

	setBool(&cfg.Monitor.Enabled, "R2_MONITOR_ENABLED")
	setInt(&cfg.Monitor.Port, "R2_MONITOR_PORT")

	setStr(&cfg.Notify.TelegramToken, "R2_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "R2_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "R2_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "R2_NOTIFY_EVENTS")

	// Broker credentials: R2_BROKER_<NAME>_KEY / _SECRET.
	for i := range cfg.Brokers {
		prefix := "R2_BROKER_" + strings.ToUpper(cfg.Brokers[i].Name)
		setStr(&cfg.Brokers[i].Key, prefix+"_KEY")
		setStr(&cfg.Brokers[i].Secret, prefix+"_SECRET")
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
