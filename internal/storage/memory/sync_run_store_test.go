package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

func TestSyncRunStore_Insert(t *testing.T) {
	store := NewSyncRunStore()
	ctx := context.Background()

	run := &domain.SyncRun{
		RunID:        "run-1",
		PortfolioID:  "p1",
		Provider:     "esplora",
		Status:       domain.StatusSuccess,
		Added:        3,
		TotalFetched: 5,
		StartedAt:    time.Unix(1000, 0).UTC(),
		FinishedAt:   time.Unix(1010, 0).UTC(),
	}
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	runs := store.Runs()
	if len(runs) != 1 || runs[0].RunID != "run-1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	// Returned slice must not alias stored records.
	runs[0].Status = "mutated"
	if store.Runs()[0].Status != domain.StatusSuccess {
		t.Error("Runs result aliases stored memory")
	}
}

func TestSyncRunStore_InvalidInput(t *testing.T) {
	store := NewSyncRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil run: got %v", err)
	}
	if err := store.Insert(ctx, &domain.SyncRun{PortfolioID: "p1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("missing run id: got %v", err)
	}
}
