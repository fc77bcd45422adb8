package storage

import (
	"context"

	"btc-wallet-sync/internal/domain"
)

// LedgerStore provides access to portfolio transaction storage.
type LedgerStore interface {
	// InsertTransaction adds one transaction to a portfolio keyed by its
	// fingerprint. Returns ErrDuplicateKey if the portfolio already holds
	// the transaction hash.
	InsertTransaction(ctx context.Context, portfolioID, fingerprint string, tx *domain.Transaction) error

	// GetByPortfolio retrieves all transactions of a portfolio, ordered
	// by timestamp DESC.
	GetByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Transaction, error)

	// Fingerprints retrieves every stored fingerprint of a portfolio.
	// Used to rebuild deduplication caches after a restart.
	Fingerprints(ctx context.Context, portfolioID string) ([]string, error)
}

// BindingStore provides access to portfolio/wallet bindings.
type BindingStore interface {
	// Upsert records the wallet bound to a portfolio. The returned flag
	// reports whether the binding changed (new portfolio or new address).
	Upsert(ctx context.Context, binding *domain.PortfolioWalletBinding) (bool, error)

	// Get retrieves the binding of a portfolio. Returns ErrNotFound if
	// the portfolio has no bound wallet.
	Get(ctx context.Context, portfolioID string) (*domain.PortfolioWalletBinding, error)

	// List retrieves all bindings, ordered by portfolio ID.
	List(ctx context.Context) ([]*domain.PortfolioWalletBinding, error)
}

// SyncRunStore records completed synchronization runs for auditing.
type SyncRunStore interface {
	// Insert appends one finished run.
	Insert(ctx context.Context, run *domain.SyncRun) error
}
