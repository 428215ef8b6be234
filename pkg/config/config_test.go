package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Environment)
	assert.Equal(t, "BTCTMN", c.Trader.Symbol)
	assert.Equal(t, "240", c.Trader.PrimaryTF)
	assert.Equal(t, "60", c.Trader.ConfirmTF)
	assert.Equal(t, 2200, c.Trader.MaxCandlesPrimary)
	assert.Equal(t, 12*time.Second, c.Trader.PollInterval)
	assert.Equal(t, 100000.0, c.Trader.MinTradeValue)
	assert.Equal(t, 1e8, c.Trader.StartEquity)
	assert.Equal(t, 0.30, c.Strategy.Weights.Trend)
	assert.Equal(t, 0.18, c.Strategy.BuyThreshold)
	assert.Equal(t, 1.3, c.Strategy.RegimeScale.High)
	assert.True(t, c.Strategy.RequireMTFAgreement)
	assert.True(t, c.Strategy.AllowIntracandle)
	assert.Equal(t, "https://api.wallex.ir", c.Wallex.BaseURL)
	assert.Equal(t, 3, c.Wallex.Retries)
	assert.Equal(t, 4.0, c.Wallex.RateLimitPerSec)
	assert.Equal(t, "sqlite", c.Journal.Backend)
	assert.Equal(t, "trading_data.db", c.Journal.SQLitePath)
}

func TestLoadYAMLKeepsExplicitFalse(t *testing.T) {
	path := writeConfig(t, `
trader:
  symbol: ETHTMN
strategy:
  allow_intracandle: false
  s_buy: 0.25
  weights:
    trend: 0.5
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHTMN", c.Trader.Symbol)
	assert.False(t, c.Strategy.AllowIntracandle)
	assert.Equal(t, 0.25, c.Strategy.BuyThreshold)
	assert.Equal(t, 0.5, c.Strategy.Weights.Trend)
	assert.Equal(t, 0.20, c.Strategy.Weights.Momentum)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
journal:
  backend: postgres
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
strategy:
  s_buy: -1
`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SYMBOL", "USDTTMN")
	t.Setenv("LIVE_POLL_SECONDS", "30")
	t.Setenv("S_SELL", "0.3")
	t.Setenv("ALLOW_INTRACANDLE", "no")
	t.Setenv("TELEGRAM_MIN_LEVEL", "warning")
	t.Setenv("WALLEX_TIMEOUT", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	c, err := LoadWithEnv("")
	require.NoError(t, err)

	assert.Equal(t, "USDTTMN", c.Trader.Symbol)
	assert.Equal(t, 30*time.Second, c.Trader.PollInterval)
	assert.Equal(t, 0.3, c.Strategy.SellThreshold)
	assert.False(t, c.Strategy.AllowIntracandle)
	assert.Equal(t, "WARNING", c.Telegram.MinLevel)
	assert.Equal(t, 5*time.Second, c.Wallex.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
}

func TestLoadWithEnvRejectsBadNumber(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("S_BUY", "abc")
	_, err := LoadWithEnv("")
	assert.Error(t, err)
}
