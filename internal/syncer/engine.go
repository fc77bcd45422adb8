package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"btc-wallet-sync/internal/dedup"
	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/fallback"
	"btc-wallet-sync/internal/storage"
)

// Engine is the inbound facade of the sync subsystem. All services are
// injected at construction; there is no process-wide state.
type Engine struct {
	orch        *Orchestrator
	coordinator *fallback.Coordinator
	dedup       *dedup.Index
	bindings    storage.BindingStore
	logger      *slog.Logger

	// group collapses concurrent syncs of the same portfolio/wallet
	// pair; the second caller shares the first run's result.
	group singleflight.Group
}

// EngineOptions for creating an Engine.
type EngineOptions struct {
	Orchestrator *Orchestrator
	Coordinator  *fallback.Coordinator
	Dedup        *dedup.Index
	Bindings     storage.BindingStore
	Logger       *slog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		orch:        opts.Orchestrator,
		coordinator: opts.Coordinator,
		dedup:       opts.Dedup,
		bindings:    opts.Bindings,
		logger:      opts.Logger,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// FetchTransactions previews a wallet's normalized history without
// persisting anything. Nil limits mean full history and no date cutoff.
func (e *Engine) FetchTransactions(ctx context.Context, wallet, portfolioID string, maxTx, daysBack *int) (*domain.SyncResult, error) {
	return e.orch.Fetch(ctx, wallet, portfolioID, maxTx, daysBack)
}

// SyncWallet fetches, deduplicates, enriches and persists a wallet's
// history. Concurrent calls for the same portfolio/wallet pair are
// collapsed into one run.
func (e *Engine) SyncWallet(ctx context.Context, wallet, portfolioID string, maxTx, daysBack *int) (*domain.SyncSummary, error) {
	key := portfolioID + "|" + wallet
	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.orch.Sync(ctx, wallet, portfolioID, maxTx, daysBack)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("sync shared with in-flight run", "key", key)
	}
	return v.(*domain.SyncSummary), nil
}

// BindWallet validates the address and records it as the portfolio's
// active wallet. A changed binding invalidates the portfolio's dedup
// cache so the old wallet's fingerprints cannot mask the new history.
func (e *Engine) BindWallet(ctx context.Context, portfolioID, wallet string) error {
	if portfolioID == "" {
		return fmt.Errorf("%w: empty portfolio id", storage.ErrInvalidInput)
	}
	addr, err := domain.ParseWalletAddress(wallet)
	if err != nil {
		return err
	}

	changed, err := e.bindings.Upsert(ctx, &domain.PortfolioWalletBinding{
		PortfolioID:   portfolioID,
		WalletAddress: addr,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("upsert wallet binding: %w", err)
	}

	if changed {
		if err := e.dedup.ClearPortfolio(ctx, portfolioID); err != nil {
			return fmt.Errorf("clear dedup cache after rebind: %w", err)
		}
		e.logger.Info("wallet bound", "portfolio_id", portfolioID, "wallet", string(addr))
	}
	return nil
}

// TestProviderConnectivity pings every configured provider.
func (e *Engine) TestProviderConnectivity(ctx context.Context) map[string]bool {
	return e.coordinator.Connectivity(ctx)
}

// Stats reports the dedup index state.
func (e *Engine) Stats(ctx context.Context) (dedup.Stats, error) {
	return e.dedup.GetStats(ctx)
}
