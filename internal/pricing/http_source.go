package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL points at the public CoinGecko API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// DefaultCurrency is the fiat currency quotes are requested in.
	DefaultCurrency = "usd"

	defaultTimeout = 15 * time.Second
)

// coinIDs maps ticker symbols to CoinGecko asset identifiers.
var coinIDs = map[string]string{
	"BTC": "bitcoin",
}

// HTTPSource fetches prices from a CoinGecko compatible API.
type HTTPSource struct {
	baseURL  string
	currency string
	http     *http.Client
	logger   *slog.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) HTTPOption {
	return func(s *HTTPSource) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithCurrency sets the fiat quote currency.
func WithCurrency(currency string) HTTPOption {
	return func(s *HTTPSource) {
		s.currency = strings.ToLower(currency)
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.http = client
	}
}

// WithLogger sets the source logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(s *HTTPSource) {
		s.logger = logger
	}
}

// NewHTTPSource builds a price source with sensible defaults.
func NewHTTPSource(opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:  DefaultBaseURL,
		currency: DefaultCurrency,
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Source = (*HTTPSource)(nil)

// Currency reports the configured quote currency.
func (s *HTTPSource) Currency() string {
	return strings.ToUpper(s.currency)
}

// CurrentPrice returns the latest quote for the symbol.
func (s *HTTPSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown symbol %s", ErrPriceUnavailable, symbol)
	}

	query := url.Values{
		"ids":           {id},
		"vs_currencies": {s.currency},
	}
	var payload map[string]map[string]json.Number
	if err := s.get(ctx, "/simple/price", query, &payload); err != nil {
		return decimal.Zero, err
	}

	raw, ok := payload[id][s.currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no %s quote for %s", ErrPriceUnavailable, s.currency, symbol)
	}
	return parsePrice(raw)
}

// HistoricalPrice returns the daily close nearest the given moment.
// CoinGecko history has day granularity, which is close enough for
// valuing on-chain transfers.
func (s *HTTPSource) HistoricalPrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown symbol %s", ErrPriceUnavailable, symbol)
	}

	query := url.Values{
		"date":         {at.UTC().Format("02-01-2006")},
		"localization": {"false"},
	}
	var payload struct {
		MarketData *struct {
			CurrentPrice map[string]json.Number `json:"current_price"`
		} `json:"market_data"`
	}
	if err := s.get(ctx, "/coins/"+id+"/history", query, &payload); err != nil {
		return decimal.Zero, err
	}

	if payload.MarketData == nil {
		return decimal.Zero, fmt.Errorf("%w: no market data for %s on %s",
			ErrPriceUnavailable, symbol, at.UTC().Format("2006-01-02"))
	}
	raw, ok := payload.MarketData.CurrentPrice[s.currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no %s quote for %s", ErrPriceUnavailable, s.currency, symbol)
	}
	return parsePrice(raw)
}

func (s *HTTPSource) get(ctx context.Context, path string, query url.Values, out any) error {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("price request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Warn("price source error",
			"path", path,
			"status", resp.StatusCode)
		return fmt.Errorf("%w: %s returned %d: %s", ErrPriceUnavailable, path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode price response %s: %w", path, err)
	}
	return nil
}

func parsePrice(raw json.Number) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative quote %s", ErrPriceUnavailable, price)
	}
	return price, nil
}
