// Package normalize maps raw provider payloads into the canonical
// transaction shape. Each mapping is a pure function: deterministic given
// the same payload, no side effects. A record that cannot be mapped is
// skipped, never aborts the batch.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"btc-wallet-sync/internal/domain"
)

// ErrSkipRecord marks a single raw record as unusable. Callers drop the
// record and continue with the rest of the batch.
var ErrSkipRecord = errors.New("skip record")

// Symbol is the only asset this engine syncs.
const Symbol = "BTC"

// DirectionForNet classifies the signed net value reported for an address.
// Zero nets to transfer_in; that mirrors the upstream explorers' behavior
// for self-transfers and is relied on downstream.
func DirectionForNet(net int64) domain.TransactionType {
	if net < 0 {
		return domain.TypeTransferOut
	}
	return domain.TypeTransferIn
}

func skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipRecord, fmt.Sprintf(format, args...))
}

// build assembles a canonical transaction from normalized parts.
func build(hash string, netSats, feeSats, unixTime int64, exchange string, raw any) (*domain.Transaction, error) {
	if netSats == 0 {
		return nil, skip("tx %s: zero net value for address", hash)
	}

	qty := domain.SatoshisToBTC(netSats).Abs()

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, skip("tx %s: marshal raw payload: %v", hash, err)
	}

	tx := &domain.Transaction{
		TxHash:      hash,
		Symbol:      Symbol,
		Type:        DirectionForNet(netSats),
		Quantity:    qty,
		Fee:         domain.SatoshisToBTC(feeSats),
		FeeCurrency: Symbol,
		Timestamp:   unixSeconds(unixTime),
		Exchange:    exchange,
		Raw:         payload,
	}
	if err := tx.Validate(); err != nil {
		return nil, skip("tx %s: %v", hash, err)
	}
	return tx, nil
}
