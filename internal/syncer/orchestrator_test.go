package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-wallet-sync/internal/dedup"
	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/fallback"
	"btc-wallet-sync/internal/pricing"
	"btc-wallet-sync/internal/storage/memory"
)

const testWallet = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

// pagedProvider serves a fixed sequence of transaction pages.
type pagedProvider struct {
	name  string
	pages [][]*domain.Transaction
	calls int
}

func (p *pagedProvider) Name() string { return p.name }

func (p *pagedProvider) Ping(ctx context.Context) error { return nil }

func (p *pagedProvider) FetchPage(ctx context.Context, addr, cursor string, limit int) (*fallback.Page, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.pages) {
		return &fallback.Page{Provider: p.name}, nil
	}
	txs := p.pages[idx]
	page := &fallback.Page{
		Provider:     p.name,
		Transactions: txs,
		HasMore:      len(txs) > 0,
	}
	if len(txs) > 0 {
		page.NextCursor = txs[len(txs)-1].TxHash
	}
	return page, nil
}

func syncTx(hash string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		TxHash:    hash,
		Symbol:    "BTC",
		Type:      domain.TypeTransferIn,
		Quantity:  decimal.New(5, -3),
		Timestamp: ts,
		Exchange:  "esplora",
	}
}

func makePage(n int, prefix string, newest time.Time) []*domain.Transaction {
	txs := make([]*domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, syncTx(fmt.Sprintf("%s-%03d", prefix, i), newest.Add(-time.Duration(i)*time.Minute)))
	}
	return txs
}

type testEnv struct {
	orch     *Orchestrator
	provider *pagedProvider
	ledger   *memory.LedgerStore
	prices   *pricing.StaticSource
}

func newTestEnv(t *testing.T, pages [][]*domain.Transaction) *testEnv {
	t.Helper()

	provider := &pagedProvider{name: "esplora", pages: pages}
	ledger := memory.NewLedgerStore()
	prices := pricing.NewStaticSource()
	prices.SetCurrent("BTC", decimal.NewFromInt(60000))

	index := dedup.NewIndex(dedup.Options{
		Local:  dedup.NewMemoryCache(time.Hour),
		Ledger: ledger,
	})

	orch := New(Options{
		Coordinator: fallback.NewCoordinator([]fallback.Provider{provider}),
		Dedup:       index,
		Ledger:      ledger,
		Prices:      prices,
		RunStore:    memory.NewSyncRunStore(),
	})

	return &testEnv{orch: orch, provider: provider, ledger: ledger, prices: prices}
}

func TestFetch_PaginationExactness(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t, [][]*domain.Transaction{
		makePage(50, "p1", now),
		makePage(30, "p2", now.Add(-2*time.Hour)),
		nil,
	})

	result, err := env.orch.Fetch(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Count != 80 {
		t.Fatalf("count = %d, want 80", result.Count)
	}
	if env.provider.calls != 3 {
		t.Fatalf("provider calls = %d, want exactly 3", env.provider.calls)
	}
}

func TestFetch_InvalidAddress(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.orch.Fetch(context.Background(), "not-an-address", "port-1", nil, nil)
	if !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
	if result.Status != domain.StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if env.provider.calls != 0 {
		t.Fatal("validation failure must not reach providers")
	}
}

func TestFetch_MaxTransactions(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t, [][]*domain.Transaction{
		makePage(50, "p1", now),
		makePage(50, "p2", now.Add(-2*time.Hour)),
	})

	maxTx := 60
	result, err := env.orch.Fetch(context.Background(), testWallet, "port-1", &maxTx, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Count != 60 {
		t.Fatalf("count = %d, want 60", result.Count)
	}
	if env.provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2 (stop once limit reached)", env.provider.calls)
	}
}

func TestFetch_DaysBackCutoff(t *testing.T) {
	now := time.Now().UTC()
	recent := makePage(5, "recent", now)
	old := makePage(5, "old", now.AddDate(0, 0, -40))
	env := newTestEnv(t, [][]*domain.Transaction{recent, old})

	daysBack := 30
	result, err := env.orch.Fetch(context.Background(), testWallet, "port-1", nil, &daysBack)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Count != 5 {
		t.Fatalf("count = %d, want 5 (old page cut off)", result.Count)
	}
}

func TestFetch_ResultCacheServesRepeat(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t, [][]*domain.Transaction{
		makePage(5, "p1", now),
		nil,
		makePage(5, "p1", now),
	})

	first, err := env.orch.Fetch(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	calls := env.provider.calls

	second, err := env.orch.Fetch(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if env.provider.calls != calls {
		t.Fatalf("provider calls = %d, want %d (repeat must be served from cache)", env.provider.calls, calls)
	}
	if second.Count != first.Count {
		t.Fatalf("cached count = %d, want %d", second.Count, first.Count)
	}

	// A different request shape is a cache miss.
	maxTx := 3
	third, err := env.orch.Fetch(context.Background(), testWallet, "port-1", &maxTx, nil)
	if err != nil {
		t.Fatalf("third fetch: %v", err)
	}
	if env.provider.calls == calls {
		t.Fatal("changing limits must bypass the result cache")
	}
	if third.Count != 3 {
		t.Fatalf("count = %d, want 3", third.Count)
	}
}

func TestFetch_ProvidersExhausted(t *testing.T) {
	env := newTestEnv(t, nil) // provider returns an empty first page

	_, err := env.orch.Fetch(context.Background(), testWallet, "port-1", nil, nil)
	if !errors.Is(err, fallback.ErrProvidersExhausted) {
		t.Fatalf("err = %v, want ErrProvidersExhausted", err)
	}
}

func TestSync_PersistsAndCounts(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t, [][]*domain.Transaction{makePage(10, "p1", now)})
	env.prices.SetHistorical("BTC", now, decimal.NewFromInt(58000))

	summary, err := env.orch.Sync(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Added != 10 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.TotalFetched != 10 {
		t.Fatalf("total fetched = %d", summary.TotalFetched)
	}
	if summary.RunID == "" {
		t.Fatal("run id missing")
	}

	persisted, err := env.ledger.GetByPortfolio(context.Background(), "port-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 10 {
		t.Fatalf("persisted = %d, want 10", len(persisted))
	}
	for _, tx := range persisted {
		if tx.PriceAtExecution.IsZero() {
			t.Fatalf("transaction %s not enriched", tx.TxHash)
		}
		if !tx.TotalAmount.Equal(tx.Quantity.Mul(tx.PriceAtExecution)) {
			t.Fatalf("total amount mismatch for %s", tx.TxHash)
		}
	}
}

func TestSync_CurrencyLabelFollowsQuote(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t, [][]*domain.Transaction{makePage(2, "p1", now)})
	env.prices.SetCurrency("eur")
	env.prices.SetCurrent("BTC", decimal.NewFromInt(52000))

	summary, err := env.orch.Sync(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Added != 2 {
		t.Fatalf("added = %d, want 2", summary.Added)
	}

	persisted, err := env.ledger.GetByPortfolio(context.Background(), "port-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, tx := range persisted {
		if tx.Currency != "EUR" {
			t.Fatalf("currency = %q, want EUR (must follow the quote currency)", tx.Currency)
		}
		if !tx.PriceAtExecution.Equal(decimal.NewFromInt(52000)) {
			t.Fatalf("price = %s, want 52000", tx.PriceAtExecution)
		}
	}
}

func TestSync_IdempotentResync(t *testing.T) {
	now := time.Now().UTC()
	pages := [][]*domain.Transaction{makePage(10, "p1", now)}
	env := newTestEnv(t, pages)

	first, err := env.orch.Sync(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Added != 10 {
		t.Fatalf("first added = %d", first.Added)
	}

	// Same data again: fresh provider state, same ledger and dedup index.
	env.provider.pages = [][]*domain.Transaction{makePage(10, "p1", now)}
	env.provider.calls = 0

	second, err := env.orch.Sync(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Added != 0 {
		t.Fatalf("second added = %d, want 0", second.Added)
	}
	if second.Skipped != 10 {
		t.Fatalf("second skipped = %d, want 10", second.Skipped)
	}
}

func TestSync_UnpriceableCountedFailed(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t, [][]*domain.Transaction{makePage(4, "p1", now)})
	env.prices = pricing.NewStaticSource() // no prices at all
	env.orch.prices = env.prices

	summary, err := env.orch.Sync(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Added != 0 {
		t.Fatalf("added = %d, want 0", summary.Added)
	}
	if summary.Failed != 4 {
		t.Fatalf("failed = %d, want 4", summary.Failed)
	}

	persisted, _ := env.ledger.GetByPortfolio(context.Background(), "port-1")
	if len(persisted) != 0 {
		t.Fatal("unpriceable transactions must not be persisted")
	}
}

func TestSync_LateDuplicateSkippedNotFailed(t *testing.T) {
	now := time.Now().UTC()
	page := makePage(3, "p1", now)
	env := newTestEnv(t, [][]*domain.Transaction{page})

	// Simulate a concurrent run that already persisted one of the
	// transactions after our dedup check would have passed.
	other := *page[1]
	if err := env.ledger.InsertTransaction(context.Background(), "port-1", "other-fp", &other); err != nil {
		t.Fatal(err)
	}

	summary, err := env.orch.Sync(context.Background(), testWallet, "port-1", nil, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Added != 2 {
		t.Fatalf("added = %d, want 2", summary.Added)
	}
	if summary.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1 (conflict is a skip, not a failure)", summary.Skipped)
	}
	if summary.Failed != 0 {
		t.Fatalf("failed = %d, want 0", summary.Failed)
	}
}

func TestSync_InvalidAddressAudited(t *testing.T) {
	env := newTestEnv(t, nil)
	runs := memory.NewSyncRunStore()
	env.orch.runs = runs

	_, err := env.orch.Sync(context.Background(), "bogus", "port-1", nil, nil)
	if !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("err = %v", err)
	}

	recorded := runs.Runs()
	if len(recorded) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(recorded))
	}
	if recorded[0].Status != domain.StatusError {
		t.Fatalf("audit status = %s", recorded[0].Status)
	}
}
