// Command synccli is a one-shot client for the sync engine. It fetches
// or syncs a single wallet, checks provider connectivity, or prints fee
// estimates, and writes the result as JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"btc-wallet-sync/internal/config"
	"btc-wallet-sync/internal/dedup"
	"btc-wallet-sync/internal/domain"
	"btc-wallet-sync/internal/explorer"
	"btc-wallet-sync/internal/fallback"
	"btc-wallet-sync/internal/pricing"
	"btc-wallet-sync/internal/storage"
	"btc-wallet-sync/internal/storage/memory"
	"btc-wallet-sync/internal/storage/migrations"
	pgstore "btc-wallet-sync/internal/storage/postgres"
	"btc-wallet-sync/internal/syncer"
)

func main() {
	mode := flag.String("mode", "fetch", "Mode: fetch, sync, check, fees")
	configPath := flag.String("config", "", "Path to YAML config file")
	wallet := flag.String("wallet", "", "Bitcoin wallet address")
	portfolio := flag.String("portfolio", "default", "Portfolio identifier")
	maxTx := flag.Int("max-tx", 0, "Stop after this many transactions (0 = unlimited)")
	daysBack := flag.Int("days-back", 0, "Only include transactions from the last N days (0 = all)")
	postgresDSN := flag.String("postgres-dsn", "", "Persist into PostgreSQL instead of memory (sync mode)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall operation timeout")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch strings.ToLower(*mode) {
	case "fetch", "sync":
		if *wallet == "" {
			fatal("-wallet is required in %s mode", *mode)
		}
		engine, cleanup, err := buildEngine(ctx, cfg, *postgresDSN, logger)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()

		var result any
		if *mode == "fetch" {
			result, err = engine.FetchTransactions(ctx, *wallet, *portfolio, optional(*maxTx), optional(*daysBack))
		} else {
			result, err = engine.SyncWallet(ctx, *wallet, *portfolio, optional(*maxTx), optional(*daysBack))
		}
		if err != nil {
			fatal("%s %s: %v", *mode, *wallet, err)
		}
		printJSON(result)

	case "check":
		engine, cleanup, err := buildEngine(ctx, cfg, "", logger)
		if err != nil {
			fatal("%v", err)
		}
		defer cleanup()
		printJSON(engine.TestProviderConnectivity(ctx))

	case "fees":
		client, err := esploraClient(cfg, logger)
		if err != nil {
			fatal("%v", err)
		}
		estimates, err := client.FeeEstimates(ctx)
		if err != nil {
			fatal("fee estimates: %v", err)
		}
		printJSON(estimates)

	default:
		fatal("unknown mode %q (expected fetch, sync, check or fees)", *mode)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadAndValidate(path)
	}
	cfg := &config.Config{
		Providers: []domain.ProviderConfig{
			{Name: domain.ProviderEsplora, BaseURL: "https://blockstream.info/api"},
			{Name: domain.ProviderBlockchainInfo, BaseURL: "https://blockchain.info"},
			{Name: domain.ProviderBlockCypher, BaseURL: "https://api.blockcypher.com/v1/btc/main"},
		},
	}
	if err := config.ApplyDefaultsAndValidate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildEngine(ctx context.Context, cfg *config.Config, postgresDSN string, logger *slog.Logger) (*syncer.Engine, func(), error) {
	cleanup := func() {}

	var (
		ledger   storage.LedgerStore  = memory.NewLedgerStore()
		bindings storage.BindingStore = memory.NewBindingStore()
	)
	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		ledger = pgstore.NewLedgerStore(pool)
		bindings = pgstore.NewBindingStore(pool)
		cleanup = pool.Close
	}

	providers := make([]fallback.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		var provider fallback.Provider
		switch pc.Name {
		case domain.ProviderEsplora:
			provider = fallback.NewEsploraProvider(explorer.NewEsploraClient(pc, explorer.WithLogger(logger)), logger)
		case domain.ProviderBlockchainInfo:
			provider = fallback.NewBlockchainInfoProvider(explorer.NewBlockchainInfoClient(pc, explorer.WithLogger(logger)), logger)
		case domain.ProviderBlockCypher:
			provider = fallback.NewBlockCypherProvider(explorer.NewBlockCypherClient(pc, explorer.WithLogger(logger)), logger)
		default:
			cleanup()
			return nil, nil, fmt.Errorf("unknown provider %q", pc.Name)
		}
		providers = append(providers, provider)
	}
	coordinator := fallback.NewCoordinator(providers, fallback.WithLogger(logger))

	index := dedup.NewIndex(dedup.Options{
		Local:  dedup.NewMemoryCache(cfg.Sync.DedupTTL),
		Ledger: ledger,
		TTL:    cfg.Sync.DedupTTL,
		Logger: logger,
	})

	priceOpts := []pricing.HTTPOption{pricing.WithLogger(logger)}
	if cfg.Pricing.BaseURL != "" {
		priceOpts = append(priceOpts, pricing.WithBaseURL(cfg.Pricing.BaseURL))
	}
	if cfg.Pricing.Currency != "" {
		priceOpts = append(priceOpts, pricing.WithCurrency(cfg.Pricing.Currency))
	}

	orch := syncer.New(syncer.Options{
		Coordinator: coordinator,
		Dedup:       index,
		Ledger:      ledger,
		Prices:      pricing.NewHTTPSource(priceOpts...),
		PageSize:    cfg.Sync.PageSize,
		Logger:      logger,
	})
	engine := syncer.NewEngine(syncer.EngineOptions{
		Orchestrator: orch,
		Coordinator:  coordinator,
		Dedup:        index,
		Bindings:     bindings,
		Logger:       logger,
	})
	return engine, cleanup, nil
}

func esploraClient(cfg *config.Config, logger *slog.Logger) (*explorer.EsploraClient, error) {
	for _, pc := range cfg.Providers {
		if pc.Name == domain.ProviderEsplora {
			return explorer.NewEsploraClient(pc, explorer.WithLogger(logger)), nil
		}
	}
	return nil, fmt.Errorf("no esplora provider configured")
}

func optional(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode result: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
