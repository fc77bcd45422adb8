package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction or kind of a ledger transaction.
type TransactionType string

const (
	TypeTransferIn  TransactionType = "transfer_in"
	TypeTransferOut TransactionType = "transfer_out"
	TypeBuy         TransactionType = "buy"
	TypeSell        TransactionType = "sell"
)

// String returns the string representation of TransactionType.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the type is a valid value.
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeTransferIn, TypeTransferOut, TypeBuy, TypeSell:
		return true
	}
	return false
}

// SatoshisPerBTC is the fixed subunit divisor for BTC amounts.
const SatoshisPerBTC = 100_000_000

// Transaction is the canonical transaction shape produced by the
// normalizers. Direction is carried by Type; Quantity is always positive.
// Instances are immutable after creation.
type Transaction struct {
	TxHash           string          // on-chain transaction hash
	Symbol           string          // asset symbol, e.g. "BTC"
	Type             TransactionType // transfer_in | transfer_out | buy | sell
	Quantity         decimal.Decimal // strictly positive, canonical unit
	PriceAtExecution decimal.Decimal // unit price at Timestamp, set during enrichment
	TotalAmount      decimal.Decimal // Quantity * PriceAtExecution
	Currency         string          // quote currency for prices, e.g. "USD"
	Fee              decimal.Decimal // network fee, canonical unit
	FeeCurrency      string          // fee denomination, empty means Symbol
	Timestamp        time.Time       // block time (UTC)
	Exchange         string          // originating provider name
	Notes            string
	Raw              json.RawMessage // raw provider payload, kept for audit
}

// Transaction validation errors.
var (
	ErrMissingTxHash     = errors.New("transaction hash is required")
	ErrMissingSymbol     = errors.New("transaction symbol is required")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrNonPositiveAmount = errors.New("transaction quantity must be strictly positive")
	ErrMissingTimestamp  = errors.New("transaction timestamp is required")
	ErrNegativeFee       = errors.New("transaction fee must not be negative")
)

// Validate ensures the transaction adheres to the canonical contract.
func (t *Transaction) Validate() error {
	if t.TxHash == "" {
		return ErrMissingTxHash
	}
	if t.Symbol == "" {
		return ErrMissingSymbol
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if !t.Quantity.IsPositive() {
		return ErrNonPositiveAmount
	}
	if t.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if t.Fee.IsNegative() {
		return ErrNegativeFee
	}
	return nil
}

// SatoshisToBTC converts provider-native integer subunits to the canonical
// decimal unit using the fixed 10^8 divisor.
func SatoshisToBTC(sats int64) decimal.Decimal {
	return decimal.New(sats, -8)
}
