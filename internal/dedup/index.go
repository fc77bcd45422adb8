package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/fingerprint"
	"btc-wallet-sync/internal/observability"
)

// DefaultTTL is the fingerprint cache lifetime.
const DefaultTTL = 24 * time.Hour

// FingerprintSource is the persistence-layer view the index backfills
// from, lazily and one portfolio at a time.
type FingerprintSource interface {
	Fingerprints(ctx context.Context, portfolioID string) ([]string, error)
}

// Options configures an Index.
type Options struct {
	// Local is the process-local cache. Required.
	Local Cache
	// Shared is the cross-process cache. Optional.
	Shared Cache
	// Ledger backfills fingerprints on cache misses. Optional.
	Ledger FingerprintSource

	TTL     time.Duration
	Weights Weights
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Index is the deduplication index: exact fingerprint membership over a
// layered cache (local, shared, database backfill) plus fuzzy similarity.
// Safe for concurrent use; it is shared across sync runs.
type Index struct {
	local   Cache
	shared  Cache
	ledger  FingerprintSource
	ttl     time.Duration
	weights Weights
	logger  *slog.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	seeded     map[string]struct{} // portfolios with completed DB backfill
	portfolios map[string]struct{} // portfolios ever touched
}

// NewIndex creates a deduplication index.
func NewIndex(opts Options) *Index {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	weights := opts.Weights
	if weights.total() == 0 {
		weights = DefaultWeights()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Index{
		local:      opts.Local,
		shared:     opts.Shared,
		ledger:     opts.Ledger,
		ttl:        ttl,
		weights:    weights,
		logger:     logger,
		metrics:    opts.Metrics,
		seeded:     make(map[string]struct{}),
		portfolios: make(map[string]struct{}),
	}
}

// Stats is the observability snapshot of the index.
type Stats struct {
	CacheSize         int  // fingerprints in the local cache
	PortfolioCount    int  // portfolios touched since startup
	BackendConnected  bool // shared cache reachable
	TotalCachedHashes int  // local + shared fingerprints
}

func cacheKey(portfolioID, hash string) string {
	return "dedup:" + portfolioID + ":" + hash
}

func portfolioPrefix(portfolioID string) string {
	return "dedup:" + portfolioID + ":"
}

// Fingerprint computes the deterministic identity of a transaction
// within a portfolio.
func (i *Index) Fingerprint(portfolioID string, tx *domain.Transaction) string {
	return fingerprint.Compute(portfolioID, tx)
}

// Similarity scores two transactions with the configured weights.
func (i *Index) Similarity(a, b *domain.Transaction) float64 {
	return i.weights.Similarity(a, b)
}

// IsDuplicate reports whether the fingerprint is already known for the
// portfolio. Lookup order: local cache, shared cache, then a one-time
// database backfill that seeds both caches.
func (i *Index) IsDuplicate(ctx context.Context, portfolioID, hash string) (bool, error) {
	i.touch(portfolioID)
	key := cacheKey(portfolioID, hash)

	found, err := i.local.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("local cache get: %w", err)
	}
	if found {
		i.countHit("local")
		return true, nil
	}

	if i.shared != nil {
		found, err := i.shared.Get(ctx, key)
		if err != nil {
			// A degraded shared cache must not fail the lookup; the
			// persistence-layer uniqueness constraint is the backstop.
			i.logger.Warn("shared dedup cache unavailable", "error", err)
		} else if found {
			i.countHit("shared")
			if err := i.local.Set(ctx, key, i.ttl); err != nil {
				return true, fmt.Errorf("seed local cache: %w", err)
			}
			return true, nil
		}
	}

	seededNow, err := i.ensureSeeded(ctx, portfolioID)
	if err != nil {
		return false, err
	}
	if seededNow {
		found, err := i.local.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("local cache get: %w", err)
		}
		if found {
			i.countHit("database")
			return true, nil
		}
	}

	return false, nil
}

// ensureSeeded loads the portfolio's persisted fingerprints into both
// caches, once per portfolio. Returns true if a backfill ran.
func (i *Index) ensureSeeded(ctx context.Context, portfolioID string) (bool, error) {
	if i.ledger == nil {
		return false, nil
	}

	i.mu.Lock()
	if _, done := i.seeded[portfolioID]; done {
		i.mu.Unlock()
		return false, nil
	}
	i.mu.Unlock()

	hashes, err := i.ledger.Fingerprints(ctx, portfolioID)
	if err != nil {
		return false, fmt.Errorf("backfill fingerprints for %s: %w", portfolioID, err)
	}
	if _, err := i.addHashes(ctx, portfolioID, hashes); err != nil {
		return false, err
	}

	i.mu.Lock()
	i.seeded[portfolioID] = struct{}{}
	i.mu.Unlock()

	i.logger.Debug("dedup backfill complete", "portfolio", portfolioID, "fingerprints", len(hashes))
	return true, nil
}

// FilterDuplicates partitions candidates into unique transactions and
// duplicate fingerprints, preserving candidate order. It is a pure
// filter: nothing is persisted; call AddHashes after the survivors are
// committed.
func (i *Index) FilterDuplicates(ctx context.Context, portfolioID string, candidates []*domain.Transaction) ([]*domain.Transaction, []string, error) {
	unique := make([]*domain.Transaction, 0, len(candidates))
	var dupes []string
	seen := make(map[string]struct{}, len(candidates))

	for _, tx := range candidates {
		hash := i.Fingerprint(portfolioID, tx)

		if _, intraBatch := seen[hash]; intraBatch {
			dupes = append(dupes, hash)
			continue
		}
		seen[hash] = struct{}{}

		dup, err := i.IsDuplicate(ctx, portfolioID, hash)
		if err != nil {
			return nil, nil, err
		}
		if dup {
			dupes = append(dupes, hash)
			continue
		}
		unique = append(unique, tx)
	}

	return unique, dupes, nil
}

// AddHashes records fingerprints in both cache layers with the index
// TTL. Returns the count of genuinely new hashes; re-adding an existing
// hash is a no-op.
func (i *Index) AddHashes(ctx context.Context, portfolioID string, hashes []string) (int, error) {
	i.touch(portfolioID)
	return i.addHashes(ctx, portfolioID, hashes)
}

func (i *Index) addHashes(ctx context.Context, portfolioID string, hashes []string) (int, error) {
	var added int
	for _, hash := range hashes {
		key := cacheKey(portfolioID, hash)

		known, err := i.local.Get(ctx, key)
		if err != nil {
			return added, fmt.Errorf("local cache get: %w", err)
		}
		if !known && i.shared != nil {
			if sharedKnown, err := i.shared.Get(ctx, key); err == nil {
				known = sharedKnown
			}
		}
		if !known {
			added++
		}

		if err := i.local.Set(ctx, key, i.ttl); err != nil {
			return added, fmt.Errorf("local cache set: %w", err)
		}
		if i.shared != nil {
			if err := i.shared.Set(ctx, key, i.ttl); err != nil {
				i.logger.Warn("shared dedup cache set failed", "error", err)
			}
		}
	}
	i.updateGauges(ctx)
	return added, nil
}

// ClearPortfolio evicts all cached fingerprints for a portfolio, local
// and shared. Called whenever the portfolio's wallet binding changes.
func (i *Index) ClearPortfolio(ctx context.Context, portfolioID string) error {
	prefix := portfolioPrefix(portfolioID)

	if _, err := i.local.DeleteByPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("clear local cache: %w", err)
	}
	if i.shared != nil {
		if _, err := i.shared.DeleteByPrefix(ctx, prefix); err != nil {
			return fmt.Errorf("clear shared cache: %w", err)
		}
	}

	i.mu.Lock()
	delete(i.seeded, portfolioID)
	i.mu.Unlock()

	i.logger.Info("dedup cache cleared", "portfolio", portfolioID)
	i.updateGauges(ctx)
	return nil
}

// GetStats returns the observability snapshot.
func (i *Index) GetStats(ctx context.Context) (Stats, error) {
	local, err := i.local.CountByPrefix(ctx, "dedup:")
	if err != nil {
		return Stats{}, fmt.Errorf("count local cache: %w", err)
	}

	stats := Stats{
		CacheSize:         local,
		TotalCachedHashes: local,
	}

	i.mu.Lock()
	stats.PortfolioCount = len(i.portfolios)
	i.mu.Unlock()

	if i.shared != nil {
		if err := i.shared.Ping(ctx); err == nil {
			stats.BackendConnected = true
			if shared, err := i.shared.CountByPrefix(ctx, "dedup:"); err == nil {
				stats.TotalCachedHashes += shared
			}
		}
	}

	return stats, nil
}

func (i *Index) touch(portfolioID string) {
	i.mu.Lock()
	i.portfolios[portfolioID] = struct{}{}
	i.mu.Unlock()
}

func (i *Index) countHit(layer string) {
	if i.metrics != nil {
		i.metrics.DedupHits.WithLabelValues(layer).Inc()
	}
}

func (i *Index) updateGauges(ctx context.Context) {
	if i.metrics == nil {
		return
	}
	if n, err := i.local.CountByPrefix(ctx, "dedup:"); err == nil {
		i.metrics.DedupCacheSize.Set(float64(n))
	}
	i.mu.Lock()
	i.metrics.DedupPortfolios.Set(float64(len(i.portfolios)))
	i.mu.Unlock()
}
