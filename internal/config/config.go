// Package config provides configuration management for the bot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot           BotConfig          `mapstructure:"bot"`
	Provider      ProviderConfig     `mapstructure:"provider"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Alerts        AlertConfig        `mapstructure:"alerts"`
	Store         StoreConfig        `mapstructure:"store"`
	News          NewsConfig         `mapstructure:"news"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// BotConfig holds chat-platform configuration.
type BotConfig struct {
	Token         string `mapstructure:"token"`
	CommandPrefix string `mapstructure:"command_prefix"`
	PollTimeout   int    `mapstructure:"poll_timeout"` // long-poll timeout, seconds
}

// ProviderConfig holds price-provider configuration.
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// CacheConfig holds price-cache configuration. TTL bounds how long a
// cached price is trusted; Cooldown bounds how often the provider may be
// hit per ticker, independent of TTL.
type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// AlertConfig holds alert-scheduler configuration.
type AlertConfig struct {
	PriceInterval   time.Duration `mapstructure:"price_interval"`
	PercentInterval time.Duration `mapstructure:"percent_interval"`
}

// StoreConfig holds ledger-store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// NewsConfig holds financial-news configuration.
type NewsConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Limit    int           `mapstructure:"limit"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stocksage"
	}
	return filepath.Join(home, ".config", "stocksage")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// Config file not found, write a template for next time
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.command_prefix", "!")
	v.SetDefault("bot.poll_timeout", 60)

	v.SetDefault("provider.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("provider.timeout", 5*time.Second)
	v.SetDefault("provider.max_attempts", 2)

	v.SetDefault("cache.ttl", 300*time.Second)
	v.SetDefault("cache.cooldown", 30*time.Second)

	v.SetDefault("alerts.price_interval", 600*time.Second)
	v.SetDefault("alerts.percent_interval", 600*time.Second)

	v.SetDefault("store.path", filepath.Join(DefaultConfigDir(), "portfolio.db"))

	v.SetDefault("news.cache_ttl", 30*time.Minute)
	v.SetDefault("news.limit", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.News.APIKey = v
	}
	if v := os.Getenv("STOCKSAGE_DB"); v != "" {
		cfg.Store.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.Cooldown <= 0 {
		return fmt.Errorf("cache cooldown must be positive")
	}
	if c.Alerts.PriceInterval <= 0 || c.Alerts.PercentInterval <= 0 {
		return fmt.Errorf("alert intervals must be positive")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider max_attempts must be at least 1")
	}
	if c.Bot.PollTimeout < 0 {
		return fmt.Errorf("bot poll_timeout must be non-negative")
	}
	return nil
}
