// Package fallback tries block-explorer providers in priority order and
// returns the first usable, normalized result.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"btc-wallet-sync/internal/domain"
)

// Page is one provider page of normalized transactions, newest first.
type Page struct {
	Provider     string
	Transactions []*domain.Transaction
	// NextCursor is the provider-specific cursor for the following page.
	// Cursors are opaque and never valid across providers.
	NextCursor string
	// HasMore reports whether the provider may have further pages.
	HasMore bool
}

// Provider is one upstream API paired with its normalizer.
type Provider interface {
	Name() string

	// FetchPage fetches and normalizes one page for the address. An
	// empty cursor requests the first page. Records that cannot be
	// normalized are dropped, never abort the page.
	FetchPage(ctx context.Context, addr, cursor string, limit int) (*Page, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}

// ErrProvidersExhausted is matched by ExhaustedError via errors.Is.
var ErrProvidersExhausted = errors.New("all providers failed or returned no data")

// ErrEmptyHistory marks a provider that responded but had no
// transactions for the address.
var ErrEmptyHistory = errors.New("no transaction history")

// ExhaustedError aggregates the per-provider failure causes when no
// provider produced a usable result.
type ExhaustedError struct {
	Causes map[string]error
}

func (e *ExhaustedError) Error() string {
	if len(e.Causes) == 0 {
		return ErrProvidersExhausted.Error()
	}
	names := make([]string, 0, len(e.Causes))
	for name := range e.Causes {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Causes[name]))
	}
	return ErrProvidersExhausted.Error() + " [" + strings.Join(parts, "; ") + "]"
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrProvidersExhausted
}
