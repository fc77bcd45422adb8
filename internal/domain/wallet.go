package domain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrInvalidAddress is returned when a wallet address fails validation.
var ErrInvalidAddress = errors.New("invalid wallet address")

// WalletAddress is a mainnet Bitcoin address, validated at construction.
// Supported encodings: legacy P2PKH (Base58, prefix 1), P2SH (Base58,
// prefix 3) and native segwit (Bech32, prefix bc1).
type WalletAddress string

// ParseWalletAddress validates the given string as a mainnet address.
func ParseWalletAddress(s string) (WalletAddress, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty string", ErrInvalidAddress)
	}

	addr, err := btcutil.DecodeAddress(s, &chaincfg.MainNetParams)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	if !addr.IsForNet(&chaincfg.MainNetParams) {
		return "", fmt.Errorf("%w: %s is not a mainnet address", ErrInvalidAddress, s)
	}

	switch addr.(type) {
	case *btcutil.AddressPubKeyHash,
		*btcutil.AddressScriptHash,
		*btcutil.AddressWitnessPubKeyHash,
		*btcutil.AddressWitnessScriptHash,
		*btcutil.AddressTaproot:
		return WalletAddress(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported address kind %T", ErrInvalidAddress, addr)
	}
}

// String returns the address string.
func (w WalletAddress) String() string {
	return string(w)
}
