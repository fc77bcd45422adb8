// Package explorer provides HTTP clients for the upstream block-explorer
// APIs. Every request is paced by a per-provider rate limiter and retried
// with exponential backoff on transient failures.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	MaxBackoff        = 30 * time.Second
	DefaultRetryAfter = 60 * time.Second
)

// client is the shared HTTP layer under every provider client.
// The limiter state is global per provider, shared across all wallets.
type client struct {
	name       string
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures a provider client.
type Option func(*client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) {
		c.http = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *client) {
		c.logger = l
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *client) {
		c.metrics = m
	}
}

func newClient(cfg domain.ProviderConfig, opts ...Option) client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	c := client{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: maxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// get performs a GET with rate limiting, bounded retries and exponential
// backoff. Retried: transport errors, timeouts and 5xx. HTTP 429 honors
// Retry-After (default 60s) and does not consume the retry budget. Other
// 4xx are permanent.
func (c *client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempt := 0
	var lastErr error

	for {
		// Pace before every attempt, retries included.
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		c.logAttempt(path, attempt, lastErr)
		if c.metrics != nil {
			c.metrics.ProviderRequests.WithLabelValues(c.name).Inc()
		}

		status, header, body, err := c.do(ctx, endpoint)
		switch {
		case err == nil && status == http.StatusOK:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				c.countError("parsing")
				return &RequestError{
					Provider: c.name, Endpoint: path, Status: status, Attempts: attempt + 1,
					Err: fmt.Errorf("decode response: %w", err),
				}
			}
			return nil

		case err == nil && status == http.StatusTooManyRequests:
			// Rate-limit waits are distinguished from transport retries
			// and do not consume a retry slot.
			c.countError("rate_limited")
			delay := retryAfter(header)
			c.logger.Warn("provider rate limited",
				"provider", c.name, "endpoint", path, "retry_after", delay)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			continue

		case err == nil && status >= 500:
			c.countError("server")
			lastErr = fmt.Errorf("status %d: %s", status, truncate(body))

		case err == nil:
			// Remaining 4xx are permanent failures.
			c.countError("client")
			return &RequestError{
				Provider: c.name, Endpoint: path, Status: status, Attempts: attempt + 1,
				Err: fmt.Errorf("unexpected status %d: %s", status, truncate(body)),
			}

		default:
			c.countError("network")
			lastErr = fmt.Errorf("http request: %w", err)
		}

		attempt++
		if attempt > c.maxRetries {
			return &RequestError{
				Provider: c.name, Endpoint: path, Attempts: attempt,
				Err: fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr),
			}
		}
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return err
		}
	}
}

func (c *client) do(ctx context.Context, endpoint string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (c *client) logAttempt(path string, attempt int, lastErr error) {
	if attempt == 0 {
		c.logger.Debug("provider request", "provider", c.name, "endpoint", path)
		return
	}
	c.logger.Warn("provider request retry",
		"provider", c.name, "endpoint", path, "attempt", attempt, "error", lastErr)
}

func (c *client) countError(class string) {
	if c.metrics != nil {
		c.metrics.ProviderErrors.WithLabelValues(c.name, class).Inc()
	}
}

// backoff returns 2^attempt seconds capped at MaxBackoff.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		return MaxBackoff
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

// retryAfter parses a Retry-After header, either delta-seconds or an HTTP
// date. Defaults to 60s when absent or unparseable.
func retryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
