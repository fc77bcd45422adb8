package fallback

import (
	"context"
	"log/slog"

	"btc-wallet-sync/internal/observability"
)

// Coordinator walks an ordered provider chain until one of them
// returns a usable first page. Pagination then sticks with the winner,
// so a wallet's history is never stitched from two providers with
// incompatible cursors.
type Coordinator struct {
	providers []Provider
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics wires fallback counters.
func WithMetrics(m *observability.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator builds a coordinator over the given providers. Order
// matters: earlier providers are preferred.
func NewCoordinator(providers []Provider, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		providers: providers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the configured chain in preference order.
func (c *Coordinator) Providers() []Provider {
	return c.providers
}

// First fetches the opening page of an address history, trying each
// provider in order. The first provider that returns a non-empty page
// wins and is handed back to the caller for the rest of the
// pagination. A provider that errors or comes back empty falls
// through to the next one. When the whole chain fails, the returned
// error matches ErrProvidersExhausted and carries the per-provider
// causes.
func (c *Coordinator) First(ctx context.Context, addr string, limit int) (*Page, Provider, error) {
	causes := make(map[string]error, len(c.providers))

	for _, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		page, err := provider.FetchPage(ctx, addr, "", limit)
		if err != nil {
			c.logger.Warn("provider failed, falling through",
				"provider", provider.Name(),
				"address", addr,
				"error", err)
			if c.metrics != nil {
				c.metrics.ProviderFallback.WithLabelValues(provider.Name()).Inc()
			}
			causes[provider.Name()] = err
			continue
		}
		if len(page.Transactions) == 0 && !page.HasMore {
			c.logger.Debug("provider returned no history",
				"provider", provider.Name(),
				"address", addr)
			causes[provider.Name()] = ErrEmptyHistory
			continue
		}

		c.logger.Debug("provider selected",
			"provider", provider.Name(),
			"address", addr,
			"transactions", len(page.Transactions))
		return page, provider, nil
	}

	return nil, nil, &ExhaustedError{Causes: causes}
}

// Connectivity pings every provider and reports reachability by name.
func (c *Coordinator) Connectivity(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(c.providers))
	for _, provider := range c.providers {
		err := provider.Ping(ctx)
		out[provider.Name()] = err == nil
		if err != nil {
			c.logger.Warn("provider unreachable",
				"provider", provider.Name(),
				"error", err)
		}
	}
	return out
}
