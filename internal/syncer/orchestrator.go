// Package syncer drives wallet synchronization end to end: validation,
// paginated fetching through the provider fallback chain, deduplication,
// price enrichment and exactly-once ledger persistence.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"btc-wallet-sync/internal/dedup"
	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/fallback"
	"btc-wallet-sync/internal/fingerprint"
	"btc-wallet-sync/internal/observability"
	"btc-wallet-sync/internal/pricing"
	"btc-wallet-sync/internal/storage"
)

// State names one phase of a sync run.
type State string

// Run states. Error is reachable from every state except Done.
const (
	StateIdle        State = "IDLE"
	StateValidating  State = "VALIDATING"
	StateFetching    State = "FETCHING"
	StateNormalizing State = "NORMALIZING"
	StateDeduping    State = "DEDUPING"
	StateEnriching   State = "ENRICHING"
	StatePersisting  State = "PERSISTING"
	StateDone        State = "DONE"
	StateError       State = "ERROR"
)

// DefaultPageSize is the per-page fetch size when none is configured.
const DefaultPageSize = 50

// DefaultResultTTL bounds how long a fetch preview is served from cache
// before the providers are consulted again.
const DefaultResultTTL = 30 * time.Second

// Orchestrator runs the sync state machine. It is safe for concurrent
// use; per-run state lives on the run struct, not here.
type Orchestrator struct {
	coordinator *fallback.Coordinator
	dedup       *dedup.Index
	ledger      storage.LedgerStore
	prices      pricing.Source
	runs        storage.SyncRunStore

	// results caches recent fetch previews per request shape.
	results *gocache.Cache

	pageSize int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Options for creating an Orchestrator.
type Options struct {
	// Required services
	Coordinator *fallback.Coordinator
	Dedup       *dedup.Index
	Ledger      storage.LedgerStore
	Prices      pricing.Source

	// RunStore is optional; when nil no audit rows are written.
	RunStore storage.SyncRunStore

	PageSize int
	// ResultTTL is the fetch preview cache lifetime; 0 means DefaultResultTTL.
	ResultTTL time.Duration
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		coordinator: opts.Coordinator,
		dedup:       opts.Dedup,
		ledger:      opts.Ledger,
		prices:      opts.Prices,
		runs:        opts.RunStore,
		pageSize:    opts.PageSize,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	ttl := opts.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	o.results = gocache.New(ttl, 2*ttl)
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// run carries the mutable state of one sync invocation.
type run struct {
	id          string
	portfolioID string
	wallet      string
	state       State
	startedAt   time.Time
	logger      *slog.Logger
}

func (o *Orchestrator) newRun(portfolioID, wallet string) *run {
	r := &run{
		id:          uuid.NewString(),
		portfolioID: portfolioID,
		wallet:      wallet,
		state:       StateIdle,
		startedAt:   time.Now().UTC(),
	}
	r.logger = o.logger.With("run_id", r.id, "portfolio_id", portfolioID, "wallet", wallet)
	return r
}

func (r *run) transition(next State) {
	r.logger.Debug("state transition", "from", r.state, "to", next)
	r.state = next
}

// Fetch retrieves and normalizes a wallet's history without touching the
// ledger or the dedup caches. It is the read-only preview of Sync.
func (o *Orchestrator) Fetch(ctx context.Context, wallet, portfolioID string, maxTx, daysBack *int) (*domain.SyncResult, error) {
	r := o.newRun(portfolioID, wallet)

	r.transition(StateValidating)
	addr, err := domain.ParseWalletAddress(wallet)
	if err != nil {
		return o.fetchError(r, observability.ErrClassValidation, err)
	}

	key := resultKey(portfolioID, string(addr), maxTx, daysBack)
	if cached, ok := o.results.Get(key); ok {
		r.transition(StateDone)
		r.logger.Debug("fetch served from result cache")
		return cached.(*domain.SyncResult), nil
	}

	r.transition(StateFetching)
	txs, provider, _, err := o.paginate(ctx, r, string(addr), maxTx, daysBack)
	if err != nil {
		if errors.Is(err, fallback.ErrProvidersExhausted) {
			return o.fetchError(r, observability.ErrClassExhausted, err)
		}
		return o.fetchError(r, observability.ErrClassNetwork, err)
	}

	r.transition(StateDone)
	r.logger.Info("fetch complete", "provider", provider, "count", len(txs))

	result := &domain.SyncResult{
		Status:       domain.StatusSuccess,
		Message:      fmt.Sprintf("fetched %d transactions via %s", len(txs), provider),
		Transactions: txs,
		Count:        len(txs),
		Timestamp:    time.Now().UTC(),
	}
	o.results.Set(key, result, gocache.DefaultExpiration)
	return result, nil
}

// resultKey identifies one fetch request shape. Unset limits are part of
// the key: fetching with and without a cutoff are different requests.
func resultKey(portfolioID, wallet string, maxTx, daysBack *int) string {
	return portfolioID + "|" + wallet + "|" + intKey(maxTx) + "|" + intKey(daysBack)
}

func intKey(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

// Sync runs the full state machine: fetch, dedup, enrich, persist. Per
// record failures become counts; only validation failure and total
// provider exhaustion fail the run.
func (o *Orchestrator) Sync(ctx context.Context, wallet, portfolioID string, maxTx, daysBack *int) (*domain.SyncSummary, error) {
	r := o.newRun(portfolioID, wallet)

	r.transition(StateValidating)
	addr, err := domain.ParseWalletAddress(wallet)
	if err != nil {
		return nil, o.syncError(ctx, r, "", 0, observability.ErrClassValidation, err)
	}

	r.transition(StateFetching)
	txs, provider, fetched, err := o.paginate(ctx, r, string(addr), maxTx, daysBack)
	if err != nil {
		class := observability.ErrClassNetwork
		if errors.Is(err, fallback.ErrProvidersExhausted) {
			class = observability.ErrClassExhausted
		}
		return nil, o.syncError(ctx, r, provider, fetched, class, err)
	}

	r.transition(StateDeduping)
	unique, dupHashes, err := o.dedup.FilterDuplicates(ctx, portfolioID, txs)
	if err != nil {
		// Degraded dedup falls through to the persistence backstop.
		r.logger.Warn("dedup filter degraded", "error", err)
		unique = txs
	}
	skipped := len(dupHashes)

	r.transition(StateEnriching)
	enriched, failed := o.enrich(ctx, r, unique)

	r.transition(StatePersisting)
	added := 0
	var newHashes []string
	for _, tx := range enriched {
		fp := fingerprint.Compute(portfolioID, tx)
		err := o.ledger.InsertTransaction(ctx, portfolioID, fp, tx)
		switch {
		case err == nil:
			added++
			newHashes = append(newHashes, fp)
		case errors.Is(err, storage.ErrDuplicateKey):
			// Late-detected duplicate from a concurrent run.
			skipped++
			o.countError(observability.ErrClassConflict)
			r.logger.Debug("duplicate at persistence", "tx_hash", tx.TxHash)
		default:
			failed++
			r.logger.Error("persist failed", "tx_hash", tx.TxHash, "error", err)
		}
	}

	if len(newHashes) > 0 {
		if _, err := o.dedup.AddHashes(ctx, portfolioID, newHashes); err != nil {
			r.logger.Warn("dedup cache update failed", "error", err)
		}
	}

	r.transition(StateDone)
	summary := &domain.SyncSummary{
		RunID:        r.id,
		Added:        added,
		Skipped:      skipped,
		Failed:       failed,
		TotalFetched: fetched,
	}
	r.logger.Info("sync complete",
		"provider", provider,
		"added", added,
		"skipped", skipped,
		"failed", failed,
		"total_fetched", fetched)

	o.observeRun(domain.StatusSuccess)
	if o.metrics != nil {
		o.metrics.SyncDuration.Observe(time.Since(r.startedAt).Seconds())
		o.metrics.TransactionsAdded.Add(float64(added))
		o.metrics.TransactionsSkipped.Add(float64(skipped))
		o.metrics.TransactionsFailed.Add(float64(failed))
	}
	o.recordRun(ctx, r, provider, domain.StatusSuccess, summary, "")
	return summary, nil
}

// paginate walks the winning provider's pages, honoring maxTx and the
// daysBack cutoff. It returns the collected transactions, the winning
// provider name and the raw fetched count.
func (o *Orchestrator) paginate(ctx context.Context, r *run, addr string, maxTx, daysBack *int) ([]*domain.Transaction, string, int, error) {
	var cutoff time.Time
	if daysBack != nil {
		cutoff = time.Now().UTC().AddDate(0, 0, -*daysBack)
	}

	page, provider, err := o.coordinator.First(ctx, addr, o.pageSize)
	if err != nil {
		return nil, "", 0, err
	}
	o.countPage()

	var collected []*domain.Transaction
	fetched := 0

	for {
		r.transition(StateNormalizing)
		fetched += len(page.Transactions)
		stop := false

		for _, tx := range page.Transactions {
			if !cutoff.IsZero() && tx.Timestamp.Before(cutoff) {
				// Pages are newest first; everything after is older.
				stop = true
				break
			}
			collected = append(collected, tx)
			if maxTx != nil && len(collected) >= *maxTx {
				stop = true
				break
			}
		}

		if stop || !page.HasMore || page.NextCursor == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, provider.Name(), fetched, err
		}

		r.transition(StateFetching)
		next, err := provider.FetchPage(ctx, addr, page.NextCursor, o.pageSize)
		if err != nil {
			// A mid-pagination failure keeps what was already collected;
			// switching providers here would mix incompatible cursors.
			r.logger.Warn("pagination stopped early",
				"provider", provider.Name(),
				"cursor", page.NextCursor,
				"error", err)
			break
		}
		o.countPage()
		page = next
	}

	return collected, provider.Name(), fetched, nil
}

// enrich prices each transaction at its timestamp, falling back to the
// current price. Unpriceable transactions are dropped and counted as
// failed.
func (o *Orchestrator) enrich(ctx context.Context, r *run, txs []*domain.Transaction) ([]*domain.Transaction, int) {
	if o.prices == nil {
		return txs, 0
	}

	enriched := make([]*domain.Transaction, 0, len(txs))
	failed := 0

	for _, tx := range txs {
		price, err := o.prices.HistoricalPrice(ctx, tx.Symbol, tx.Timestamp)
		if err != nil {
			r.logger.Debug("historical price unavailable, trying current",
				"tx_hash", tx.TxHash, "error", err)
			price, err = o.prices.CurrentPrice(ctx, tx.Symbol)
		}
		if err != nil {
			failed++
			o.countError(observability.ErrClassPrice)
			r.logger.Warn("no price obtainable, transaction not persisted",
				"tx_hash", tx.TxHash, "error", err)
			continue
		}

		tx.PriceAtExecution = price
		tx.TotalAmount = tx.Quantity.Mul(price)
		tx.Currency = o.prices.Currency()
		enriched = append(enriched, tx)
	}

	return enriched, failed
}

func (o *Orchestrator) fetchError(r *run, class string, err error) (*domain.SyncResult, error) {
	r.transition(StateError)
	o.countError(class)
	r.logger.Error("fetch failed", "class", class, "error", err)
	return &domain.SyncResult{
		Status:    domain.StatusError,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}, err
}

func (o *Orchestrator) syncError(ctx context.Context, r *run, provider string, fetched int, class string, err error) error {
	r.transition(StateError)
	o.countError(class)
	o.observeRun(domain.StatusError)
	r.logger.Error("sync failed", "class", class, "error", err)
	o.recordRun(ctx, r, provider, domain.StatusError, &domain.SyncSummary{TotalFetched: fetched}, err.Error())
	return err
}

// recordRun writes the audit row. Failures are logged, never surfaced:
// auditing must not fail a finished sync.
func (o *Orchestrator) recordRun(ctx context.Context, r *run, provider, status string, summary *domain.SyncSummary, errMsg string) {
	if o.runs == nil {
		return
	}

	audit := &domain.SyncRun{
		RunID:         r.id,
		PortfolioID:   r.portfolioID,
		WalletAddress: r.wallet,
		Provider:      provider,
		Status:        status,
		Added:         summary.Added,
		Skipped:       summary.Skipped,
		Failed:        summary.Failed,
		TotalFetched:  summary.TotalFetched,
		StartedAt:     r.startedAt,
		FinishedAt:    time.Now().UTC(),
		Error:         errMsg,
	}
	if err := o.runs.Insert(ctx, audit); err != nil {
		r.logger.Warn("audit record not written", "error", err)
	}
}

func (o *Orchestrator) observeRun(status string) {
	if o.metrics == nil {
		return
	}
	o.metrics.SyncRuns.WithLabelValues(status).Inc()
}

func (o *Orchestrator) countError(class string) {
	if o.metrics == nil {
		return
	}
	o.metrics.SyncErrors.WithLabelValues(class).Inc()
}

func (o *Orchestrator) countPage() {
	if o.metrics == nil {
		return
	}
	o.metrics.PagesFetched.Inc()
}
