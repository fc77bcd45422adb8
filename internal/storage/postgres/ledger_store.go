package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
//
// The wallet_transactions table carries UNIQUE (portfolio_id, tx_hash),
// which backstops the in-process deduplication: concurrent syncs of the
// same wallet cannot double-insert even if the caches miss.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// InsertTransaction adds one transaction. Returns ErrDuplicateKey if the
// portfolio already holds the transaction hash.
func (s *LedgerStore) InsertTransaction(ctx context.Context, portfolioID, fingerprint string, tx *domain.Transaction) error {
	if portfolioID == "" || fingerprint == "" || tx == nil || tx.TxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallet_transactions (
			portfolio_id, fingerprint, tx_hash, symbol, tx_type,
			quantity, price_at_execution, total_amount, fee,
			currency, fee_currency, occurred_at, exchange, notes, raw
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15
		)
	`

	raw := tx.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	_, err := s.pool.Exec(ctx, query,
		portfolioID, fingerprint, tx.TxHash, tx.Symbol, string(tx.Type),
		tx.Quantity.String(), tx.PriceAtExecution.String(), tx.TotalAmount.String(), tx.Fee.String(),
		tx.Currency, tx.FeeCurrency, tx.Timestamp.UTC(), tx.Exchange, tx.Notes, []byte(raw),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

// GetByPortfolio retrieves all transactions of a portfolio, newest first.
func (s *LedgerStore) GetByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Transaction, error) {
	query := `
		SELECT
			tx_hash, symbol, tx_type,
			quantity::text, price_at_execution::text, total_amount::text, fee::text,
			currency, fee_currency, occurred_at, exchange, notes, raw
		FROM wallet_transactions
		WHERE portfolio_id = $1
		ORDER BY occurred_at DESC, tx_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("get transactions by portfolio: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Fingerprints retrieves every stored fingerprint of a portfolio.
func (s *LedgerStore) Fingerprints(ctx context.Context, portfolioID string) ([]string, error) {
	query := `
		SELECT fingerprint
		FROM wallet_transactions
		WHERE portfolio_id = $1
		ORDER BY fingerprint ASC
	`

	rows, err := s.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("get fingerprints by portfolio: %w", err)
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprint rows: %w", err)
	}

	return fingerprints, nil
}

// scanTransactions scans rows into transactions, parsing the numeric
// columns from their text form.
func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction

	for rows.Next() {
		var (
			tx     domain.Transaction
			txType string
			raw    []byte

			quantity, price, total, fee string
		)

		err := rows.Scan(
			&tx.TxHash, &tx.Symbol, &txType,
			&quantity, &price, &total, &fee,
			&tx.Currency, &tx.FeeCurrency, &tx.Timestamp, &tx.Exchange, &tx.Notes, &raw,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}

		tx.Type = domain.TransactionType(txType)
		if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", quantity, err)
		}
		if tx.PriceAtExecution, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		if tx.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total %q: %w", total, err)
		}
		if tx.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("parse fee %q: %w", fee, err)
		}
		tx.Timestamp = tx.Timestamp.UTC()
		if len(raw) > 0 && string(raw) != "null" {
			tx.Raw = json.RawMessage(raw)
		}

		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return txs, nil
}
