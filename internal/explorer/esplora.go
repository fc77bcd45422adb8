package explorer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"btc-wallet-sync/internal/domain"
)

// EsploraClient talks to a UTXO-explorer style API
// (blockstream.info / mempool.space compatible).
type EsploraClient struct {
	client
}

// NewEsploraClient creates a client for an Esplora-compatible endpoint.
func NewEsploraClient(cfg domain.ProviderConfig, opts ...Option) *EsploraClient {
	return &EsploraClient{client: newClient(cfg, opts...)}
}

// EsploraTx is the raw per-transaction payload shape.
type EsploraTx struct {
	Txid   string       `json:"txid"`
	Fee    int64        `json:"fee"`
	Status EsploraState `json:"status"`
	Vin    []EsploraVin `json:"vin"`
	Vout   []EsploraOut `json:"vout"`
}

// EsploraState carries confirmation metadata. BlockTime is absent for
// unconfirmed transactions.
type EsploraState struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   *int64 `json:"block_time"`
}

// EsploraVin is a transaction input with its spent prevout.
type EsploraVin struct {
	Prevout *EsploraOut `json:"prevout"`
}

// EsploraOut is a transaction output.
type EsploraOut struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"` // satoshis
}

// AddressTransactions fetches one page of confirmed transactions for an
// address, newest first. lastSeenTxid pages past the previous result,
// empty fetches the first page; limit <= 0 leaves the page size to the
// server.
func (c *EsploraClient) AddressTransactions(ctx context.Context, addr, lastSeenTxid string, limit int) ([]EsploraTx, error) {
	path := fmt.Sprintf("/address/%s/txs", addr)
	query := url.Values{}
	if lastSeenTxid != "" {
		query.Set("last_seen_txid", lastSeenTxid)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var txs []EsploraTx
	if err := c.get(ctx, path, query, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Transaction fetches a single transaction by hash.
func (c *EsploraClient) Transaction(ctx context.Context, hash string) (*EsploraTx, error) {
	var tx EsploraTx
	if err := c.get(ctx, "/tx/"+hash, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// esploraBlock is the raw payload item for /blocks.
type esploraBlock struct {
	ID     string `json:"id"`
	Height int64  `json:"height"`
}

// TipHeight returns the current chain tip height.
func (c *EsploraClient) TipHeight(ctx context.Context) (int64, error) {
	var blocks []esploraBlock
	if err := c.get(ctx, "/blocks", url.Values{"limit": {"1"}}, &blocks); err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return 0, fmt.Errorf("%s: empty blocks response", c.name)
	}
	return blocks[0].Height, nil
}

// FeeEstimates returns the fee-rate estimate (sat/vB) per confirmation
// target, keyed by target block count.
func (c *EsploraClient) FeeEstimates(ctx context.Context) (map[int]float64, error) {
	var raw map[string]float64
	if err := c.get(ctx, "/fee-estimates", nil, &raw); err != nil {
		return nil, err
	}

	estimates := make(map[int]float64, len(raw))
	for target, rate := range raw {
		blocks, err := strconv.Atoi(target)
		if err != nil {
			continue
		}
		estimates[blocks] = rate
	}
	return estimates, nil
}

// Ping verifies connectivity by fetching the chain tip.
func (c *EsploraClient) Ping(ctx context.Context) error {
	_, err := c.TipHeight(ctx)
	return err
}

// Name returns the configured provider name.
func (c *EsploraClient) Name() string {
	return c.name
}
