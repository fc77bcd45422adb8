package memory

import (
	"context"
	"sync"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

// SyncRunStore is an in-memory implementation of storage.SyncRunStore.
type SyncRunStore struct {
	mu   sync.RWMutex
	runs []*domain.SyncRun
}

// NewSyncRunStore creates a new in-memory sync run store.
func NewSyncRunStore() *SyncRunStore {
	return &SyncRunStore{}
}

// Insert appends one finished run.
func (s *SyncRunStore) Insert(_ context.Context, run *domain.SyncRun) error {
	if run == nil || run.RunID == "" || run.PortfolioID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *run
	s.runs = append(s.runs, &copy)
	return nil
}

// Runs returns all recorded runs in insertion order.
func (s *SyncRunStore) Runs() []*domain.SyncRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		copy := *run
		out = append(out, &copy)
	}
	return out
}

var _ storage.SyncRunStore = (*SyncRunStore)(nil)
