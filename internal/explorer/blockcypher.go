package explorer

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"btc-wallet-sync/internal/domain"
)

// BlockCypherClient talks to a full-history style API (BlockCypher
// compatible): wrapped transactions with confirmed/total/fees fields.
type BlockCypherClient struct {
	client
}

// NewBlockCypherClient creates a client for a BlockCypher style endpoint.
func NewBlockCypherClient(cfg domain.ProviderConfig, opts ...Option) *BlockCypherClient {
	return &BlockCypherClient{client: newClient(cfg, opts...)}
}

// FullAddrResponse is the /addrs/{addr}/full payload.
type FullAddrResponse struct {
	Address string   `json:"address"`
	NTx     int64    `json:"n_tx"`
	HasMore bool     `json:"hasMore"`
	Txs     []FullTx `json:"txs"`
}

// FullTx is the raw per-transaction payload shape.
type FullTx struct {
	Hash        string       `json:"hash"`
	BlockHeight int64        `json:"block_height"`
	Confirmed   time.Time    `json:"confirmed"`
	Total       int64        `json:"total"` // satoshis
	Fees        int64        `json:"fees"`
	Inputs      []FullInput  `json:"inputs"`
	Outputs     []FullOutput `json:"outputs"`
}

// FullInput is a transaction input.
type FullInput struct {
	Addresses   []string `json:"addresses"`
	OutputValue int64    `json:"output_value"`
}

// FullOutput is a transaction output.
type FullOutput struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value"`
}

// AddressFull fetches one page of transactions for an address, newest
// first. before limits results to blocks below the given height.
func (c *BlockCypherClient) AddressFull(ctx context.Context, addr string, limit int, before int64) (*FullAddrResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}

	var resp FullAddrResponse
	if err := c.get(ctx, "/addrs/"+addr+"/full", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping verifies connectivity with a minimal known-address query.
func (c *BlockCypherClient) Ping(ctx context.Context) error {
	_, err := c.AddressFull(ctx, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 1, 0)
	return err
}

// Name returns the configured provider name.
func (c *BlockCypherClient) Name() string {
	return c.name
}
