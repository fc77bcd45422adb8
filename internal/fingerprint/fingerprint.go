// Package fingerprint computes deterministic dedup identities for
// transactions within a portfolio.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"btc-wallet-sync/internal/domain"
)

// Compute computes the deterministic fingerprint using SHA256.
// Formula: SHA256(portfolio_id|symbol|timestamp|quantity|type|exchange|tx_hash)
// Returns hex-encoded hash (64 characters).
//
// Only rounding-stable fields participate: the timestamp is truncated to
// whole seconds and the quantity is fixed to 8 decimal places, so a provider
// resync that changes mutable metadata (e.g. confirmation count) still maps
// to the original fingerprint.
func Compute(portfolioID string, tx *domain.Transaction) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s",
		portfolioID,
		tx.Symbol,
		tx.Timestamp.Unix(),
		tx.Quantity.StringFixed(8),
		tx.Type,
		tx.Exchange,
		tx.TxHash,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
