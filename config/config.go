// Package config loads ltpalert settings from an optional YAML file, a .env
// file and LTPALERT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfig is returned for missing or invalid settings.
var ErrConfig = errors.New("config error")

// Config represents the complete application configuration
type Config struct {
	Feed        FeedConfig        `mapstructure:"feed"`
	Instruments InstrumentsConfig `mapstructure:"instruments"`
	Store       StoreConfig       `mapstructure:"store"`
	Alert       AlertConfig       `mapstructure:"alert"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// FeedConfig holds the market data feed settings
type FeedConfig struct {
	AuthURL        string        `mapstructure:"auth_url"`
	AccessToken    string        `mapstructure:"access_token"`
	AuthTimeout    time.Duration `mapstructure:"auth_timeout"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	ReconnectLimit int           `mapstructure:"reconnect_limit"` // 0 = never reconnect
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// InstrumentsConfig points at the instrument file
type InstrumentsConfig struct {
	Path      string `mapstructure:"path"`
	HasHeader bool   `mapstructure:"has_header"`
}

// StoreConfig selects the rule store
type StoreConfig struct {
	Driver  string       `mapstructure:"driver"` // memory, sqlite or postgres
	DSN     string       `mapstructure:"dsn"`
	Migrate bool         `mapstructure:"migrate"`
	Rules   []RuleConfig `mapstructure:"rules"` // seeds the memory store
}

// RuleConfig is a rule given inline in the config file
type RuleConfig struct {
	ID        string  `mapstructure:"id"`
	Symbol    string  `mapstructure:"symbol"`
	Threshold float64 `mapstructure:"threshold"`
	Direction string  `mapstructure:"direction"` // above or below, any case
}

// Above reports whether the rule fires above its threshold.
func (r RuleConfig) Above() (bool, error) {
	switch {
	case strings.EqualFold(r.Direction, "above"):
		return true, nil
	case strings.EqualFold(r.Direction, "below"):
		return false, nil
	default:
		return false, fmt.Errorf("direction must be one of: above, below, got %q", r.Direction)
	}
}

// AlertConfig tunes the evaluator
type AlertConfig struct {
	MarkRetries        int           `mapstructure:"mark_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	MatchInstrumentKey bool          `mapstructure:"match_instrument_key"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BotToken   string        `mapstructure:"bot_token"`
	ChatID     string        `mapstructure:"chat_id"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (optional), .env and the environment.
// Environment variables use the LTPALERT_ prefix with dots replaced by
// underscores, e.g. LTPALERT_STORE_DRIVER. The feed token is also read from
// ACCESS_TOKEN.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LTPALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("feed.access_token", "LTPALERT_FEED_ACCESS_TOKEN", "ACCESS_TOKEN"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", ErrConfig, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.auth_url", "https://api.upstox.com/v2/feed/market-data-feed/authorize")
	v.SetDefault("feed.access_token", "")
	v.SetDefault("feed.auth_timeout", "10s")
	v.SetDefault("feed.ping_period", "10s")
	v.SetDefault("feed.read_limit", 1<<20)
	v.SetDefault("feed.reconnect_limit", 0)
	v.SetDefault("feed.reconnect_delay", "2s")

	v.SetDefault("instruments.path", "instruments.csv")
	v.SetDefault("instruments.has_header", false)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.migrate", false)

	v.SetDefault("alert.mark_retries", 3)
	v.SetDefault("alert.retry_delay", "100ms")
	v.SetDefault("alert.match_instrument_key", false)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay", "1s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Feed.AccessToken == "" {
		return fmt.Errorf("feed.access_token is required (set LTPALERT_FEED_ACCESS_TOKEN or ACCESS_TOKEN)")
	}
	if c.Feed.AuthURL == "" {
		return fmt.Errorf("feed.auth_url is required")
	}
	if c.Feed.AuthTimeout <= 0 {
		return fmt.Errorf("feed.auth_timeout must be positive")
	}
	if c.Feed.PingPeriod < 0 {
		return fmt.Errorf("feed.ping_period must not be negative")
	}
	if c.Feed.ReadLimit <= 0 {
		return fmt.Errorf("feed.read_limit must be positive")
	}
	if c.Feed.ReconnectLimit < 0 {
		return fmt.Errorf("feed.reconnect_limit must not be negative")
	}

	if c.Instruments.Path == "" {
		return fmt.Errorf("instruments.path is required")
	}
	fi, err := os.Stat(c.Instruments.Path)
	if err != nil {
		return fmt.Errorf("instruments.path: %v", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("instruments.path %s is a directory", c.Instruments.Path)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of: memory, sqlite, postgres")
	}
	for i, r := range c.Store.Rules {
		if _, err := r.Above(); err != nil {
			return fmt.Errorf("store.rules[%d].%v", i, err)
		}
	}

	if c.Alert.MarkRetries < 1 {
		return fmt.Errorf("alert.mark_retries must be at least 1")
	}
	if c.Alert.RetryDelay < 0 {
		return fmt.Errorf("alert.retry_delay must not be negative")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}
