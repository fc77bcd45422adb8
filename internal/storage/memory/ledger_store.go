package memory

import (
	"context"
	"sort"
	"sync"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

// ledgerEntry pairs a stored transaction with its fingerprint.
type ledgerEntry struct {
	fingerprint string
	tx          *domain.Transaction
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu sync.RWMutex
	// data is keyed by portfolio_id, then tx_hash.
	data map[string]map[string]*ledgerEntry
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[string]map[string]*ledgerEntry),
	}
}

// InsertTransaction adds one transaction. Returns ErrDuplicateKey if the
// portfolio already holds the transaction hash.
func (s *LedgerStore) InsertTransaction(_ context.Context, portfolioID, fingerprint string, tx *domain.Transaction) error {
	if portfolioID == "" || fingerprint == "" || tx == nil || tx.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	portfolio, exists := s.data[portfolioID]
	if !exists {
		portfolio = make(map[string]*ledgerEntry)
		s.data[portfolioID] = portfolio
	}

	if _, exists := portfolio[tx.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *tx
	portfolio[tx.TxHash] = &ledgerEntry{fingerprint: fingerprint, tx: &copy}
	return nil
}

// GetByPortfolio retrieves all transactions of a portfolio, newest first.
func (s *LedgerStore) GetByPortfolio(_ context.Context, portfolioID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, entry := range s.data[portfolioID] {
		copy := *entry.tx
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	return result, nil
}

// Fingerprints retrieves every stored fingerprint of a portfolio.
func (s *LedgerStore) Fingerprints(_ context.Context, portfolioID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for _, entry := range s.data[portfolioID] {
		result = append(result, entry.fingerprint)
	}

	sort.Strings(result)
	return result, nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
