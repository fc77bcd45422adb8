package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StaticSource serves fixed prices from memory. Used in tests and as
// the offline fallback when no price API is configured.
type StaticSource struct {
	mu       sync.RWMutex
	currency string
	current  map[string]decimal.Decimal
	// historical is keyed by symbol and UTC day.
	historical map[string]map[string]decimal.Decimal
}

// NewStaticSource builds an empty in-memory source quoting in USD.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		currency:   "USD",
		current:    make(map[string]decimal.Decimal),
		historical: make(map[string]map[string]decimal.Decimal),
	}
}

var _ Source = (*StaticSource)(nil)

// Currency reports the quote currency.
func (s *StaticSource) Currency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currency
}

// SetCurrency changes the currency label for all quotes.
func (s *StaticSource) SetCurrency(currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currency = strings.ToUpper(currency)
}

// SetCurrent fixes the current price for a symbol.
func (s *StaticSource) SetCurrent(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[symbol] = price
}

// SetHistorical fixes the price for a symbol on the day containing at.
func (s *StaticSource) SetHistorical(symbol string, at time.Time, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.historical[symbol]
	if !ok {
		days = make(map[string]decimal.Decimal)
		s.historical[symbol] = days
	}
	days[dayKey(at)] = price
}

func (s *StaticSource) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.current[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no current quote for %s", ErrPriceUnavailable, symbol)
	}
	return price, nil
}

func (s *StaticSource) HistoricalPrice(_ context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.historical[symbol][dayKey(at)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s on %s", ErrPriceUnavailable, symbol, dayKey(at))
	}
	return price, nil
}

func dayKey(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}
