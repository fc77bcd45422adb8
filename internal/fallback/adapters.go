package fallback

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"btc-wallet-sync/internal/explorer"
	"btc-wallet-sync/internal/normalize"
)

// esploraProvider pairs the Esplora client with its normalizer. The
// cursor is the last seen txid of the previous raw page.
type esploraProvider struct {
	client *explorer.EsploraClient
	logger *slog.Logger
}

// NewEsploraProvider wraps an Esplora client as a fallback Provider.
func NewEsploraProvider(client *explorer.EsploraClient, logger *slog.Logger) Provider {
	return &esploraProvider{client: client, logger: defaultLogger(logger)}
}

func (p *esploraProvider) Name() string { return p.client.Name() }

func (p *esploraProvider) Ping(ctx context.Context) error { return p.client.Ping(ctx) }

func (p *esploraProvider) FetchPage(ctx context.Context, addr, cursor string, limit int) (*Page, error) {
	raw, err := p.client.AddressTransactions(ctx, addr, cursor, limit)
	if err != nil {
		return nil, err
	}

	page := &Page{Provider: p.Name(), HasMore: len(raw) > 0}
	for idx := range raw {
		tx, err := normalize.EsploraTx(&raw[idx], addr)
		if err != nil {
			logSkip(p.logger, p.Name(), err)
			continue
		}
		page.Transactions = append(page.Transactions, tx)
	}
	if len(raw) > 0 {
		page.NextCursor = raw[len(raw)-1].Txid
	}
	return page, nil
}

// blockchainInfoProvider pairs the rawaddr client with its normalizer.
// The cursor is the numeric offset into the address history.
type blockchainInfoProvider struct {
	client *explorer.BlockchainInfoClient
	logger *slog.Logger
}

// NewBlockchainInfoProvider wraps a blockchain.info style client.
func NewBlockchainInfoProvider(client *explorer.BlockchainInfoClient, logger *slog.Logger) Provider {
	return &blockchainInfoProvider{client: client, logger: defaultLogger(logger)}
}

func (p *blockchainInfoProvider) Name() string { return p.client.Name() }

func (p *blockchainInfoProvider) Ping(ctx context.Context) error { return p.client.Ping(ctx) }

func (p *blockchainInfoProvider) FetchPage(ctx context.Context, addr, cursor string, limit int) (*Page, error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, errors.New("malformed offset cursor: " + cursor)
		}
		offset = parsed
	}

	resp, err := p.client.AddressTransactions(ctx, addr, limit, offset)
	if err != nil {
		return nil, err
	}

	page := &Page{Provider: p.Name(), HasMore: len(resp.Txs) > 0}
	for idx := range resp.Txs {
		tx, err := normalize.BlockchainInfoTx(&resp.Txs[idx], addr)
		if err != nil {
			logSkip(p.logger, p.Name(), err)
			continue
		}
		page.Transactions = append(page.Transactions, tx)
	}
	if len(resp.Txs) > 0 {
		page.NextCursor = strconv.Itoa(offset + len(resp.Txs))
	}
	return page, nil
}

// blockCypherProvider pairs the full-history client with its normalizer.
// The cursor is the block height bound for the next page.
type blockCypherProvider struct {
	client *explorer.BlockCypherClient
	logger *slog.Logger
}

// NewBlockCypherProvider wraps a BlockCypher style client.
func NewBlockCypherProvider(client *explorer.BlockCypherClient, logger *slog.Logger) Provider {
	return &blockCypherProvider{client: client, logger: defaultLogger(logger)}
}

func (p *blockCypherProvider) Name() string { return p.client.Name() }

func (p *blockCypherProvider) Ping(ctx context.Context) error { return p.client.Ping(ctx) }

func (p *blockCypherProvider) FetchPage(ctx context.Context, addr, cursor string, limit int) (*Page, error) {
	var before int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, errors.New("malformed height cursor: " + cursor)
		}
		before = parsed
	}

	resp, err := p.client.AddressFull(ctx, addr, limit, before)
	if err != nil {
		return nil, err
	}

	page := &Page{Provider: p.Name(), HasMore: resp.HasMore}
	for idx := range resp.Txs {
		tx, err := normalize.BlockCypherTx(&resp.Txs[idx], addr)
		if err != nil {
			logSkip(p.logger, p.Name(), err)
			continue
		}
		page.Transactions = append(page.Transactions, tx)
	}
	if len(resp.Txs) > 0 {
		page.NextCursor = strconv.FormatInt(resp.Txs[len(resp.Txs)-1].BlockHeight, 10)
	}
	return page, nil
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func logSkip(logger *slog.Logger, provider string, err error) {
	if errors.Is(err, normalize.ErrSkipRecord) {
		logger.Debug("record skipped", "provider", provider, "reason", err)
		return
	}
	logger.Warn("record dropped", "provider", provider, "error", err)
}
