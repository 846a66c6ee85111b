package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
broker:
  trading_base: https://paper-api.alpaca.markets
  data_base: https://data.alpaca.markets
trading:
  scale: 150
  close_buffer_minutes: 10
  status_interval_seconds: 60
storage:
  dsn: /var/lib/trader/journal.db
log:
  level: debug
  format: json
users:
  - name: alice
    key_env: ALICE_KEY
    secret_env: ALICE_SECRET
strategies:
  - user: alice
    symbol: AAPL
    allocation: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Broker.TradingBase)
	assert.Equal(t, float64(150), cfg.Trading.Scale)
	assert.Equal(t, 10*time.Minute, cfg.CloseBuffer())
	assert.Equal(t, time.Minute, cfg.StatusInterval())
	assert.Equal(t, "/var/lib/trader/journal.db", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.Len(t, cfg.Users, 1)
	assert.Equal(t, "alice", cfg.Users[0].Name)

	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, "AAPL", cfg.Strategies[0].Symbol)
	assert.Equal(t, 0.5, cfg.Strategies[0].Allocation)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
users:
  - name: alice
    key_env: ALICE_KEY
    secret_env: ALICE_SECRET
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, float64(200), cfg.Trading.Scale)
	assert.Equal(t, 15*time.Minute, cfg.CloseBuffer())
	assert.Equal(t, 30*time.Second, cfg.StatusInterval())
	assert.Equal(t, "trader.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestCredentialsComeFromEnv(t *testing.T) {
	t.Setenv("TEST_TRADER_KEY", "pk-123")
	t.Setenv("TEST_TRADER_SECRET", "sk-456")

	u := UserConfig{Name: "alice", KeyEnv: "TEST_TRADER_KEY", SecretEnv: "TEST_TRADER_SECRET"}
	assert.Equal(t, "pk-123", u.Key())
	assert.Equal(t, "sk-456", u.Secret())
}

func TestEnvOverridesLogSettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	path := writeConfig(t, `
log:
  level: info
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "broker: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}
