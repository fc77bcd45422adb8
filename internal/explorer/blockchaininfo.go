package explorer

import (
	"context"
	"net/url"
	"strconv"

	"btc-wallet-sync/internal/domain"
)

// BlockchainInfoClient talks to a ledger-explorer style API
// (blockchain.info compatible). The per-transaction `result` field is the
// signed net value for the queried address.
type BlockchainInfoClient struct {
	client
}

// NewBlockchainInfoClient creates a client for a blockchain.info style endpoint.
func NewBlockchainInfoClient(cfg domain.ProviderConfig, opts ...Option) *BlockchainInfoClient {
	return &BlockchainInfoClient{client: newClient(cfg, opts...)}
}

// RawAddrResponse is the /rawaddr/{addr} payload.
type RawAddrResponse struct {
	Address string      `json:"address"`
	NTx     int64       `json:"n_tx"`
	Txs     []RawAddrTx `json:"txs"`
}

// RawAddrTx is the raw per-transaction payload shape.
type RawAddrTx struct {
	Hash   string       `json:"hash"`
	Time   int64        `json:"time"`   // unix seconds
	Result int64        `json:"result"` // signed net satoshis for the address
	Fee    int64        `json:"fee"`
	Out    []RawAddrOut `json:"out"`
}

// RawAddrOut is a transaction output.
type RawAddrOut struct {
	Addr  string `json:"addr"`
	Value int64  `json:"value"`
}

// AddressTransactions fetches one page of transactions for an address,
// newest first. offset pages past previous results.
func (c *BlockchainInfoClient) AddressTransactions(ctx context.Context, addr string, limit, offset int) (*RawAddrResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var resp RawAddrResponse
	if err := c.get(ctx, "/rawaddr/"+addr, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping verifies connectivity with a minimal known-address query.
func (c *BlockchainInfoClient) Ping(ctx context.Context) error {
	// Genesis coinbase address, one transaction is enough.
	_, err := c.AddressTransactions(ctx, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 1, 0)
	return err
}

// Name returns the configured provider name.
func (c *BlockchainInfoClient) Name() string {
	return c.name
}
