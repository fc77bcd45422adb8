package normalize

import (
	"time"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/explorer"
)

func unixSeconds(t int64) time.Time {
	return time.Unix(t, 0).UTC()
}

// EsploraTx maps a UTXO-explorer payload to the canonical shape. The net
// value for the address is the sum of its outputs minus the sum of its
// spent prevouts.
func EsploraTx(tx *explorer.EsploraTx, addr string) (*domain.Transaction, error) {
	if tx == nil || tx.Txid == "" {
		return nil, skip("esplora tx without txid")
	}
	if tx.Status.BlockTime == nil {
		return nil, skip("tx %s: unconfirmed, no block_time", tx.Txid)
	}

	var net int64
	for _, in := range tx.Vin {
		if in.Prevout != nil && in.Prevout.ScriptpubkeyAddress == addr {
			net -= in.Prevout.Value
		}
	}
	for _, out := range tx.Vout {
		if out.ScriptpubkeyAddress == addr {
			net += out.Value
		}
	}

	return build(tx.Txid, net, tx.Fee, *tx.Status.BlockTime, domain.ProviderEsplora, tx)
}

// BlockchainInfoTx maps a ledger-explorer payload to the canonical shape.
// The provider reports the signed net value directly in `result`.
func BlockchainInfoTx(tx *explorer.RawAddrTx, _ string) (*domain.Transaction, error) {
	if tx == nil || tx.Hash == "" {
		return nil, skip("rawaddr tx without hash")
	}
	if tx.Time == 0 {
		return nil, skip("tx %s: missing time", tx.Hash)
	}

	return build(tx.Hash, tx.Result, tx.Fee, tx.Time, domain.ProviderBlockchainInfo, tx)
}

// BlockCypherTx maps a full-history payload to the canonical shape. The
// net value is computed from the address's inputs and outputs.
func BlockCypherTx(tx *explorer.FullTx, addr string) (*domain.Transaction, error) {
	if tx == nil || tx.Hash == "" {
		return nil, skip("blockcypher tx without hash")
	}
	if tx.Confirmed.IsZero() {
		return nil, skip("tx %s: unconfirmed", tx.Hash)
	}

	var net int64
	for _, in := range tx.Inputs {
		for _, a := range in.Addresses {
			if a == addr {
				net -= in.OutputValue
				break
			}
		}
	}
	for _, out := range tx.Outputs {
		for _, a := range out.Addresses {
			if a == addr {
				net += out.Value
				break
			}
		}
	}

	return build(tx.Hash, net, tx.Fees, tx.Confirmed.Unix(), domain.ProviderBlockCypher, tx)
}
