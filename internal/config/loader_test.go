package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
symbol = "ETH/JPY"
demo_mode = false
max_size = 0.5
min_size = 0.05
iteration_interval = "1s"

[[brokers]]
name = "alpha"
enabled = true
commission_percent = 0.1

[[brokers]]
name = "beta"
enabled = true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "ETH/JPY", cfg.Symbol)
	assert.False(t, cfg.DemoMode)
	assert.Equal(t, 0.5, cfg.MaxSize)
	assert.Equal(t, time.Second, cfg.IterationInterval.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, 10, cfg.MaxRetryCount)
	assert.Equal(t, 8, cfg.Stability.Threshold)

	require.Len(t, cfg.Brokers, 2)
	assert.Equal(t, 0.1, cfg.Brokers[0].CommissionPercent)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("R2_SYMBOL", "XRP/JPY")
	t.Setenv("R2_DEMO_MODE", "true")
	t.Setenv("R2_ITERATION_INTERVAL", "700ms")
	t.Setenv("R2_BROKER_ALPHA_KEY", "k-123")
	t.Setenv("R2_BROKER_ALPHA_SECRET", "s-456")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "XRP/JPY", cfg.Symbol)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, 700*time.Millisecond, cfg.IterationInterval.Duration)
	assert.Equal(t, "k-123", cfg.Brokers[0].Key)
	assert.Equal(t, "s-456", cfg.Brokers[0].Secret)
	assert.Empty(t, cfg.Brokers[1].Key)
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Brokers = []BrokerConfig{{Name: "alpha", Key: "key", Secret: "secret"}}
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "tg-token"

	out := Redacted(&cfg)
	assert.Equal(t, "***", out.Brokers[0].Key)
	assert.Equal(t, "***", out.Brokers[0].Secret)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Postgres.DSN)

	// The original is untouched.
	assert.Equal(t, "key", cfg.Brokers[0].Key)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
