package postgres

import (
	"context"
	"fmt"
	"time"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

// BindingStore implements storage.BindingStore using PostgreSQL.
type BindingStore struct {
	pool *Pool
}

// NewBindingStore creates a new BindingStore.
func NewBindingStore(pool *Pool) *BindingStore {
	return &BindingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BindingStore = (*BindingStore)(nil)

// Upsert records the wallet bound to a portfolio. Reports whether the
// binding changed. The RETURNING clause compares against the previous
// row so change detection happens in one round trip.
func (s *BindingStore) Upsert(ctx context.Context, binding *domain.PortfolioWalletBinding) (bool, error) {
	if binding == nil || binding.PortfolioID == "" || binding.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}

	updatedAt := binding.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO portfolio_wallets (portfolio_id, wallet_address, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (portfolio_id) DO UPDATE
		SET wallet_address = EXCLUDED.wallet_address,
		    updated_at = EXCLUDED.updated_at
		WHERE portfolio_wallets.wallet_address IS DISTINCT FROM EXCLUDED.wallet_address
		RETURNING xmax = 0
	`

	// RETURNING only fires when a row was inserted or actually updated,
	// so no row back means the same address was already bound.
	var inserted bool
	err := s.pool.QueryRow(ctx, query,
		binding.PortfolioID, string(binding.WalletAddress), updatedAt,
	).Scan(&inserted)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("upsert portfolio wallet: %w", err)
	}

	return true, nil
}

// Get retrieves the binding of a portfolio. Returns ErrNotFound if the
// portfolio has no bound wallet.
func (s *BindingStore) Get(ctx context.Context, portfolioID string) (*domain.PortfolioWalletBinding, error) {
	query := `
		SELECT portfolio_id, wallet_address, updated_at
		FROM portfolio_wallets
		WHERE portfolio_id = $1
	`

	var (
		binding domain.PortfolioWalletBinding
		address string
	)
	err := s.pool.QueryRow(ctx, query, portfolioID).Scan(&binding.PortfolioID, &address, &binding.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get portfolio wallet: %w", err)
	}

	binding.WalletAddress = domain.WalletAddress(address)
	binding.UpdatedAt = binding.UpdatedAt.UTC()
	return &binding, nil
}

// List retrieves all bindings, ordered by portfolio ID.
func (s *BindingStore) List(ctx context.Context) ([]*domain.PortfolioWalletBinding, error) {
	query := `
		SELECT portfolio_id, wallet_address, updated_at
		FROM portfolio_wallets
		ORDER BY portfolio_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list portfolio wallets: %w", err)
	}
	defer rows.Close()

	var bindings []*domain.PortfolioWalletBinding
	for rows.Next() {
		var (
			binding domain.PortfolioWalletBinding
			address string
		)
		if err := rows.Scan(&binding.PortfolioID, &address, &binding.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan portfolio wallet row: %w", err)
		}
		binding.WalletAddress = domain.WalletAddress(address)
		binding.UpdatedAt = binding.UpdatedAt.UTC()
		bindings = append(bindings, &binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate portfolio wallet rows: %w", err)
	}

	return bindings, nil
}
