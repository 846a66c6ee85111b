package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full trader configuration.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Trading    TradingConfig    `yaml:"trading"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Users      []UserConfig     `yaml:"users"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// BrokerConfig holds the brokerage endpoints.
type BrokerConfig struct {
	TradingBase    string `yaml:"trading_base"`
	DataBase       string `yaml:"data_base"`
	TradeStreamURL string `yaml:"trade_stream_url"`
	DataStreamURL  string `yaml:"data_stream_url"`
}

// TradingConfig tunes the strategy run loops.
type TradingConfig struct {
	Scale                 float64 `yaml:"scale"`                   // signal-to-size multiplier
	CloseBufferMinutes    int     `yaml:"close_buffer_minutes"`    // drain this close to market close
	StatusIntervalSeconds int     `yaml:"status_interval_seconds"` // console status cadence
}

// StorageConfig controls the order journal location.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// UserConfig names a user and the env vars carrying their broker keys.
// Credentials never live in the YAML file itself.
type UserConfig struct {
	Name      string `yaml:"name"`
	KeyEnv    string `yaml:"key_env"`
	SecretEnv string `yaml:"secret_env"`
}

// Key reads the user's API key from the environment.
func (u UserConfig) Key() string { return os.Getenv(u.KeyEnv) }

// Secret reads the user's API secret from the environment.
func (u UserConfig) Secret() string { return os.Getenv(u.SecretEnv) }

// StrategyConfig is one strategy to start at boot.
type StrategyConfig struct {
	User       string  `yaml:"user"`
	Symbol     string  `yaml:"symbol"`
	Allocation float64 `yaml:"allocation"`
}

// Load reads the YAML config and the .env file if one exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CloseBuffer returns the drain threshold as a time.Duration.
func (c *Config) CloseBuffer() time.Duration {
	return time.Duration(c.Trading.CloseBufferMinutes) * time.Minute
}

// StatusInterval returns the status cadence as a time.Duration.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Trading.StatusIntervalSeconds) * time.Second
}

// applyEnvOverrides overrides values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills in sensible production values.
func setDefaults(cfg *Config) {
	if cfg.Trading.Scale <= 0 {
		cfg.Trading.Scale = 200
	}
	if cfg.Trading.CloseBufferMinutes <= 0 {
		cfg.Trading.CloseBufferMinutes = 15
	}
	if cfg.Trading.StatusIntervalSeconds <= 0 {
		cfg.Trading.StatusIntervalSeconds = 30
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "trader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
