package fallback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/explorer"
)

func providerConfig(name, baseURL string) domain.ProviderConfig {
	return domain.ProviderConfig{
		Name:              name,
		BaseURL:           baseURL,
		RequestsPerSecond: 1000,
		MaxRetries:        1,
	}
}

func TestEsploraProvider_CursorIsLastTxid(t *testing.T) {
	var gotCursor, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCursor = r.URL.Query().Get("last_seen_txid")
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `[
			{"txid":"aa11","fee":100,"status":{"confirmed":true,"block_height":800000,"block_time":1700000000},
			 "vin":[],"vout":[{"scriptpubkey_address":"addr1","value":5000}]},
			{"txid":"bb22","fee":100,"status":{"confirmed":true,"block_height":799999,"block_time":1699990000},
			 "vin":[],"vout":[{"scriptpubkey_address":"addr1","value":7000}]}
		]`)
	}))
	defer srv.Close()

	provider := NewEsploraProvider(explorer.NewEsploraClient(providerConfig("esplora", srv.URL)), nil)
	page, err := provider.FetchPage(context.Background(), "addr1", "prev-txid", 25)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if gotCursor != "prev-txid" {
		t.Fatalf("cursor sent = %q, want prev-txid", gotCursor)
	}
	if gotLimit != "25" {
		t.Fatalf("limit sent = %q, want 25", gotLimit)
	}
	if page.NextCursor != "bb22" {
		t.Fatalf("NextCursor = %q, want bb22", page.NextCursor)
	}
	if !page.HasMore {
		t.Fatal("HasMore should be true for a non-empty raw page")
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(page.Transactions))
	}
}

func TestBlockchainInfoProvider_CursorIsOffset(t *testing.T) {
	var gotOffset string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOffset = r.URL.Query().Get("offset")
		fmt.Fprint(w, `{"address":"addr1","n_tx":120,"txs":[
			{"hash":"cc33","time":1700000000,"result":-2500,"fee":400,"out":[]},
			{"hash":"dd44","time":1699990000,"result":9000,"fee":300,"out":[]}
		]}`)
	}))
	defer srv.Close()

	provider := NewBlockchainInfoProvider(explorer.NewBlockchainInfoClient(providerConfig("blockchain_info", srv.URL)), nil)
	page, err := provider.FetchPage(context.Background(), "addr1", "50", 2)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if gotOffset != "50" {
		t.Fatalf("offset sent = %q, want 50", gotOffset)
	}
	if page.NextCursor != "52" {
		t.Fatalf("NextCursor = %q, want 52", page.NextCursor)
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(page.Transactions))
	}
}

func TestBlockchainInfoProvider_RejectsBadCursor(t *testing.T) {
	provider := NewBlockchainInfoProvider(explorer.NewBlockchainInfoClient(providerConfig("blockchain_info", "http://unused")), nil)
	if _, err := provider.FetchPage(context.Background(), "addr1", "not-a-number", 10); err == nil {
		t.Fatal("expected cursor parse error")
	}
}

func TestBlockCypherProvider_CursorIsBlockHeight(t *testing.T) {
	var gotBefore string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBefore = r.URL.Query().Get("before")
		fmt.Fprint(w, `{"address":"addr1","n_tx":300,"hasMore":true,"txs":[
			{"hash":"ee55","block_height":800100,"confirmed":"2023-11-14T22:13:20Z","total":12000,"fees":500,
			 "inputs":[],"outputs":[{"addresses":["addr1"],"value":12000}]}
		]}`)
	}))
	defer srv.Close()

	provider := NewBlockCypherProvider(explorer.NewBlockCypherClient(providerConfig("blockcypher", srv.URL)), nil)
	page, err := provider.FetchPage(context.Background(), "addr1", "800200", 25)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if gotBefore != "800200" {
		t.Fatalf("before sent = %q, want 800200", gotBefore)
	}
	if page.NextCursor != "800100" {
		t.Fatalf("NextCursor = %q, want 800100", page.NextCursor)
	}
	if !page.HasMore {
		t.Fatal("HasMore should follow the response flag")
	}
}

func TestEsploraProvider_SkipsBadRecordsKeepsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Second record is unconfirmed and must be dropped, not abort the page.
		fmt.Fprint(w, `[
			{"txid":"aa11","fee":100,"status":{"confirmed":true,"block_height":800000,"block_time":1700000000},
			 "vin":[],"vout":[{"scriptpubkey_address":"addr1","value":5000}]},
			{"txid":"bb22","fee":100,"status":{"confirmed":false},
			 "vin":[],"vout":[{"scriptpubkey_address":"addr1","value":7000}]}
		]`)
	}))
	defer srv.Close()

	provider := NewEsploraProvider(explorer.NewEsploraClient(providerConfig("esplora", srv.URL)), nil)
	page, err := provider.FetchPage(context.Background(), "addr1", "", 25)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(page.Transactions))
	}
	if page.NextCursor != "bb22" {
		t.Fatalf("NextCursor = %q, want bb22 (raw page position, not normalized)", page.NextCursor)
	}
}
