// Package pricing resolves fiat valuations for synced transactions.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when a source has no quote for the
// requested symbol or timestamp.
var ErrPriceUnavailable = errors.New("price unavailable")

// Source supplies fiat prices for an asset symbol.
type Source interface {
	// HistoricalPrice returns the price at or near the given moment.
	HistoricalPrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error)

	// CurrentPrice returns the latest known price.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Currency is the upper-case ISO code all quotes are denominated in.
	Currency() string
}
