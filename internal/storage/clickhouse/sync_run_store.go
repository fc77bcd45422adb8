package clickhouse

import (
	"context"
	"fmt"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

// SyncRunStore implements storage.SyncRunStore using ClickHouse. Runs
// are append-only audit records, which suits MergeTree: no updates, no
// uniqueness to enforce.
type SyncRunStore struct {
	conn *Conn
}

// NewSyncRunStore creates a new SyncRunStore.
func NewSyncRunStore(conn *Conn) *SyncRunStore {
	return &SyncRunStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SyncRunStore = (*SyncRunStore)(nil)

// Insert appends one finished run.
func (s *SyncRunStore) Insert(ctx context.Context, run *domain.SyncRun) error {
	if run == nil || run.RunID == "" || run.PortfolioID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sync_runs (
			run_id, portfolio_id, wallet_address, provider, status,
			added, skipped, failed, total_fetched,
			started_at, finished_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		run.RunID, run.PortfolioID, run.WalletAddress, run.Provider, run.Status,
		uint32(run.Added), uint32(run.Skipped), uint32(run.Failed), uint32(run.TotalFetched),
		run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// GetByPortfolio retrieves the runs of a portfolio, newest first.
func (s *SyncRunStore) GetByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*domain.SyncRun, error) {
	query := `
		SELECT
			run_id, portfolio_id, wallet_address, provider, status,
			added, skipped, failed, total_fetched,
			started_at, finished_at, error
		FROM sync_runs
		WHERE portfolio_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("get sync runs by portfolio: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	for rows.Next() {
		var (
			run                             domain.SyncRun
			added, skipped, failed, fetched uint32
		)
		err := rows.Scan(
			&run.RunID, &run.PortfolioID, &run.WalletAddress, &run.Provider, &run.Status,
			&added, &skipped, &failed, &fetched,
			&run.StartedAt, &run.FinishedAt, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sync run row: %w", err)
		}
		run.Added = int(added)
		run.Skipped = int(skipped)
		run.Failed = int(failed)
		run.TotalFetched = int(fetched)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync run rows: %w", err)
	}

	return runs, nil
}
