package domain

import (
	"errors"
	"time"
)

// Known provider names.
const (
	ProviderEsplora        = "esplora"
	ProviderBlockchainInfo = "blockchain_info"
	ProviderBlockCypher    = "blockcypher"
)

// ProviderConfig describes one upstream block-explorer API.
// Immutable, one per provider, loaded at startup.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	BaseURL           string        `yaml:"base_url"`
	WSURL             string        `yaml:"ws_url"` // optional websocket feed
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
}

// Validate checks the provider configuration.
func (c *ProviderConfig) Validate() error {
	if c.Name == "" {
		return errors.New("provider name is required")
	}
	if c.BaseURL == "" {
		return errors.New("provider base_url is required")
	}
	if c.RequestsPerSecond <= 0 {
		return errors.New("provider requests_per_second must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("provider max_retries must not be negative")
	}
	return nil
}
