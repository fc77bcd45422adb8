package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTx() *Transaction {
	return &Transaction{
		TxHash:    "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16",
		Symbol:    "BTC",
		Type:      TypeTransferOut,
		Quantity:  decimal.RequireFromString("10"),
		Currency:  "USD",
		Fee:       decimal.RequireFromString("0.0001"),
		Timestamp: time.Unix(1231731025, 0).UTC(),
		Exchange:  ProviderEsplora,
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr error
	}{
		{"valid", func(tx *Transaction) {}, nil},
		{"missing hash", func(tx *Transaction) { tx.TxHash = "" }, ErrMissingTxHash},
		{"missing symbol", func(tx *Transaction) { tx.Symbol = "" }, ErrMissingSymbol},
		{"bad type", func(tx *Transaction) { tx.Type = "deposit" }, ErrInvalidType},
		{"zero quantity", func(tx *Transaction) { tx.Quantity = decimal.Zero }, ErrNonPositiveAmount},
		{"negative quantity", func(tx *Transaction) { tx.Quantity = decimal.RequireFromString("-1") }, ErrNonPositiveAmount},
		{"zero timestamp", func(tx *Transaction) { tx.Timestamp = time.Time{} }, ErrMissingTimestamp},
		{"negative fee", func(tx *Transaction) { tx.Fee = decimal.RequireFromString("-0.1") }, ErrNegativeFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTx()
			tt.mutate(tx)
			err := tx.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSatoshisToBTC(t *testing.T) {
	tests := []struct {
		sats int64
		want string
	}{
		{100_000_000, "1"},
		{1, "0.00000001"},
		{0, "0"},
		{-54_321, "-0.00054321"},
		{12_345_678_900, "123.456789"},
	}

	for _, tt := range tests {
		got := SatoshisToBTC(tt.sats)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("SatoshisToBTC(%d) = %s, want %s", tt.sats, got, tt.want)
		}
	}
}
