// Package config loads the engine configuration from YAML with
// environment variable expansion, defaults and validation.
package config

import (
	"errors"
	"fmt"
	"time"

	"btc-wallet-sync/internal/domain"
)

// Config is the root configuration of the sync engine.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Storage   StorageConfig           `yaml:"storage"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Sync      SyncConfig              `yaml:"sync"`
	Pricing   PricingConfig           `yaml:"pricing"`
	Providers []domain.ProviderConfig `yaml:"providers"`
}

// StorageConfig selects and configures the persistence backends.
type StorageConfig struct {
	// PostgresDSN is empty when running on in-memory stores.
	PostgresDSN string `yaml:"postgres_dsn"`
	// ClickHouseDSN enables the sync-run audit store when set.
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	// RedisAddr enables the shared dedup cache when set.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	PageSize int           `yaml:"page_size"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// PricingConfig configures the price-lookup source.
type PricingConfig struct {
	BaseURL  string `yaml:"base_url"`
	Currency string `yaml:"currency"`
}

// Default values for optional configuration fields.
const (
	DefaultLogLevel    = "info"
	DefaultMetricsAddr = ":9090"
	DefaultMetricsPath = "/metrics"
	DefaultPageSize    = 50
	DefaultDedupTTL    = 24 * time.Hour

	DefaultProviderRPS     = 2.0
	DefaultProviderTimeout = 30 * time.Second
	DefaultProviderRetries = 3
)

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = DefaultPageSize
	}
	if c.Sync.DedupTTL == 0 {
		c.Sync.DedupTTL = DefaultDedupTTL
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "usd"
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		if p.RequestsPerSecond == 0 {
			p.RequestsPerSecond = DefaultProviderRPS
		}
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = DefaultProviderRetries
		}
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug/info/warn/error, got %q", c.LogLevel)
	}

	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	if c.Sync.PageSize < 1 {
		return errors.New("sync.page_size must be >= 1")
	}
	if c.Sync.DedupTTL <= 0 {
		return errors.New("sync.dedup_ttl must be positive")
	}

	return nil
}

// ApplyDefaultsAndValidate fills unset fields of a programmatically built
// config and validates it, mirroring what LoadAndValidate does for files.
func ApplyDefaultsAndValidate(c *Config) error {
	c.applyDefaults()
	return c.Validate()
}
