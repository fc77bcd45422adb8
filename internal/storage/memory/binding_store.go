package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

// BindingStore is an in-memory implementation of storage.BindingStore.
type BindingStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PortfolioWalletBinding // keyed by portfolio_id
}

// NewBindingStore creates a new in-memory binding store.
func NewBindingStore() *BindingStore {
	return &BindingStore{
		data: make(map[string]*domain.PortfolioWalletBinding),
	}
}

// Upsert records the wallet bound to a portfolio. Reports whether the
// binding changed.
func (s *BindingStore) Upsert(_ context.Context, binding *domain.PortfolioWalletBinding) (bool, error) {
	if binding == nil || binding.PortfolioID == "" || binding.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[binding.PortfolioID]
	if exists && existing.WalletAddress == binding.WalletAddress {
		return false, nil
	}

	copy := *binding
	if copy.UpdatedAt.IsZero() {
		copy.UpdatedAt = time.Now().UTC()
	}
	s.data[binding.PortfolioID] = &copy
	return true, nil
}

// Get retrieves the binding of a portfolio. Returns ErrNotFound if the
// portfolio has no bound wallet.
func (s *BindingStore) Get(_ context.Context, portfolioID string) (*domain.PortfolioWalletBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, exists := s.data[portfolioID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *binding
	return &copy, nil
}

// List retrieves all bindings, ordered by portfolio ID.
func (s *BindingStore) List(_ context.Context) ([]*domain.PortfolioWalletBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PortfolioWalletBinding, 0, len(s.data))
	for _, binding := range s.data {
		copy := *binding
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PortfolioID < result[j].PortfolioID
	})

	return result, nil
}

var _ storage.BindingStore = (*BindingStore)(nil)
