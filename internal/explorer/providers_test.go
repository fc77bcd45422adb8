package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBlockchainInfoClient_AddressTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rawaddr/1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q, want 50", got)
		}
		if got := r.URL.Query().Get("offset"); got != "100" {
			t.Errorf("offset = %q, want 100", got)
		}
		w.Write([]byte(`{
			"address": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			"n_tx": 2,
			"txs": [
				{"hash": "aa11", "time": 1700000000, "result": 5000000, "fee": 1000,
				 "out": [{"addr": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", "value": 5000000}]},
				{"hash": "bb22", "time": 1699990000, "result": -2500000, "fee": 800,
				 "out": [{"addr": "1BitcoinEaterAddressDontSendf59kuE", "value": 2500000}]}
			]
		}`))
	}))
	defer srv.Close()

	c := NewBlockchainInfoClient(testConfig("blockchain_info", srv.URL, 1))

	resp, err := c.AddressTransactions(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 50, 100)
	if err != nil {
		t.Fatalf("AddressTransactions() error: %v", err)
	}
	if resp.NTx != 2 || len(resp.Txs) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Txs[0].Result != 5000000 {
		t.Errorf("txs[0].Result = %d, want 5000000", resp.Txs[0].Result)
	}
	if resp.Txs[1].Result != -2500000 {
		t.Errorf("txs[1].Result = %d, want -2500000", resp.Txs[1].Result)
	}
}

func TestBlockCypherClient_AddressFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/addrs/1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa/full" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("before"); got != "840000" {
			t.Errorf("before = %q, want 840000", got)
		}
		w.Write([]byte(`{
			"address": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			"n_tx": 1,
			"hasMore": true,
			"txs": [{
				"hash": "cc33",
				"block_height": 839999,
				"confirmed": "2024-04-20T01:02:03Z",
				"total": 7000000,
				"fees": 2000,
				"inputs": [{"addresses": ["1BitcoinEaterAddressDontSendf59kuE"], "output_value": 7002000}],
				"outputs": [{"addresses": ["1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"], "value": 7000000}]
			}]
		}`))
	}))
	defer srv.Close()

	c := NewBlockCypherClient(testConfig("blockcypher", srv.URL, 1))

	resp, err := c.AddressFull(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 50, 840000)
	if err != nil {
		t.Fatalf("AddressFull() error: %v", err)
	}
	if !resp.HasMore || len(resp.Txs) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	tx := resp.Txs[0]
	if tx.Hash != "cc33" || tx.Total != 7000000 || tx.Fees != 2000 {
		t.Errorf("unexpected tx %+v", tx)
	}
	want := time.Date(2024, 4, 20, 1, 2, 3, 0, time.UTC)
	if !tx.Confirmed.Equal(want) {
		t.Errorf("Confirmed = %v, want %v", tx.Confirmed, want)
	}
}
