// Command syncd runs the wallet synchronization daemon: it serves the
// Prometheus endpoint, re-syncs bound wallets on new blocks, and shuts
// down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"btc-wallet-sync/internal/config"
	"btc-wallet-sync/internal/dedup"
	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/explorer"
	"btc-wallet-sync/internal/fallback"
	"btc-wallet-sync/internal/observability"
	"btc-wallet-sync/internal/pricing"
	"btc-wallet-sync/internal/storage"
	chstore "btc-wallet-sync/internal/storage/clickhouse"
	"btc-wallet-sync/internal/storage/memory"
	"btc-wallet-sync/internal/storage/migrations"
	pgstore "btc-wallet-sync/internal/storage/postgres"
	"btc-wallet-sync/internal/syncer"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config, empty keeps config value)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	syncInterval := flag.Duration("sync-interval", 30*time.Minute, "Periodic re-sync interval for bound wallets")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("forcing immediate shutdown", "signal", sig.String())
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger, *useMemory, *syncInterval)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadAndValidate(path)
	}

	// Without a file, run against the public APIs with defaults.
	cfg := &config.Config{
		Providers: []domain.ProviderConfig{
			{Name: domain.ProviderEsplora, BaseURL: "https://blockstream.info/api", WSURL: "wss://mempool.space/api/v1/ws"},
			{Name: domain.ProviderBlockchainInfo, BaseURL: "https://blockchain.info"},
			{Name: domain.ProviderBlockCypher, BaseURL: "https://api.blockcypher.com/v1/btc/main"},
		},
	}
	if err := config.ApplyDefaultsAndValidate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, useMemory bool, syncInterval time.Duration) error {
	metrics := observability.NewMetrics("")

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, cfg.Metrics.Path, logger)
	}

	// Storage
	var (
		ledger   storage.LedgerStore  = memory.NewLedgerStore()
		bindings storage.BindingStore = memory.NewBindingStore()
		runStore storage.SyncRunStore = memory.NewSyncRunStore()
	)
	if !useMemory {
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required (use -use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		ledger = pgstore.NewLedgerStore(pool)
		bindings = pgstore.NewBindingStore(pool)
	}
	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()
		runStore = chstore.NewSyncRunStore(conn)
	}

	// Dedup caches
	var shared dedup.Cache
	if cfg.Storage.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer client.Close()
		shared = dedup.NewRedisCache(client)
	}
	index := dedup.NewIndex(dedup.Options{
		Local:   dedup.NewMemoryCache(cfg.Sync.DedupTTL),
		Shared:  shared,
		Ledger:  ledger,
		TTL:     cfg.Sync.DedupTTL,
		Logger:  logger,
		Metrics: metrics,
	})

	// Providers, in configured priority order
	providers, wsEndpoint, err := buildProviders(cfg.Providers, logger, metrics)
	if err != nil {
		return err
	}
	coordinator := fallback.NewCoordinator(providers,
		fallback.WithLogger(logger),
		fallback.WithMetrics(metrics))

	prices := pricing.NewHTTPSource(
		pricingOptions(cfg.Pricing, logger)...,
	)

	orch := syncer.New(syncer.Options{
		Coordinator: coordinator,
		Dedup:       index,
		Ledger:      ledger,
		Prices:      prices,
		RunStore:    runStore,
		PageSize:    cfg.Sync.PageSize,
		Logger:      logger,
		Metrics:     metrics,
	})
	engine := syncer.NewEngine(syncer.EngineOptions{
		Orchestrator: orch,
		Coordinator:  coordinator,
		Dedup:        index,
		Bindings:     bindings,
		Logger:       logger,
	})

	logger.Info("daemon started",
		"providers", len(providers),
		"memory_storage", useMemory,
		"sync_interval", syncInterval)

	return watchAndSync(ctx, engine, bindings, wsEndpoint, syncInterval, logger, metrics)
}

// watchAndSync re-syncs every bound wallet on each new block tip, with
// a periodic ticker as fallback when no websocket feed is configured.
func watchAndSync(ctx context.Context, engine *syncer.Engine, bindings storage.BindingStore, wsEndpoint string, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) error {
	var tips <-chan explorer.TipNotification
	if wsEndpoint != "" {
		watcher, err := explorer.NewTipWatcher(ctx, wsEndpoint,
			explorer.WithWatcherLogger(logger),
			explorer.WithWatcherMetrics(metrics))
		if err != nil {
			logger.Warn("tip watcher unavailable, relying on ticker", "error", err)
		} else {
			defer watcher.Close()
			tips = watcher.Blocks()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tip, ok := <-tips:
			if !ok {
				tips = nil
				continue
			}
			logger.Info("new block tip", "height", tip.Height)
			syncBoundWallets(ctx, engine, bindings, logger)
		case <-ticker.C:
			syncBoundWallets(ctx, engine, bindings, logger)
		}
	}
}

func syncBoundWallets(ctx context.Context, engine *syncer.Engine, bindings storage.BindingStore, logger *slog.Logger) {
	list, err := bindings.List(ctx)
	if err != nil {
		logger.Error("list wallet bindings", "error", err)
		return
	}

	for _, binding := range list {
		if ctx.Err() != nil {
			return
		}
		summary, err := engine.SyncWallet(ctx, string(binding.WalletAddress), binding.PortfolioID, nil, nil)
		if err != nil {
			logger.Error("wallet sync failed",
				"portfolio_id", binding.PortfolioID,
				"wallet", binding.WalletAddress,
				"error", err)
			continue
		}
		if summary.Added > 0 {
			logger.Info("wallet synced",
				"portfolio_id", binding.PortfolioID,
				"added", summary.Added,
				"skipped", summary.Skipped,
				"failed", summary.Failed)
		}
	}
}

func buildProviders(configs []domain.ProviderConfig, logger *slog.Logger, metrics *observability.Metrics) ([]fallback.Provider, string, error) {
	providers := make([]fallback.Provider, 0, len(configs))
	wsEndpoint := ""

	for _, cfg := range configs {
		opts := []explorer.Option{
			explorer.WithLogger(logger),
			explorer.WithMetrics(metrics),
		}
		switch cfg.Name {
		case domain.ProviderEsplora:
			providers = append(providers, fallback.NewEsploraProvider(explorer.NewEsploraClient(cfg, opts...), logger))
		case domain.ProviderBlockchainInfo:
			providers = append(providers, fallback.NewBlockchainInfoProvider(explorer.NewBlockchainInfoClient(cfg, opts...), logger))
		case domain.ProviderBlockCypher:
			providers = append(providers, fallback.NewBlockCypherProvider(explorer.NewBlockCypherClient(cfg, opts...), logger))
		default:
			return nil, "", fmt.Errorf("unknown provider %q", cfg.Name)
		}
		if cfg.WSURL != "" && wsEndpoint == "" {
			wsEndpoint = cfg.WSURL
		}
	}
	return providers, wsEndpoint, nil
}

func pricingOptions(cfg config.PricingConfig, logger *slog.Logger) []pricing.HTTPOption {
	opts := []pricing.HTTPOption{pricing.WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, pricing.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Currency != "" {
		opts = append(opts, pricing.WithCurrency(cfg.Currency))
	}
	return opts
}

func serveMetrics(addr, path string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}
