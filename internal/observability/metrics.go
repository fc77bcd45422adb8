// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error classes used as the "class" label on ProviderErrors and SyncErrors.
const (
	ErrClassNetwork     = "network"
	ErrClassServer      = "server"
	ErrClassClient      = "client"
	ErrClassRateLimited = "rate_limited"
	ErrClassParsing     = "parsing"
	ErrClassValidation  = "validation"
	ErrClassExhausted   = "provider_exhausted"
	ErrClassConflict    = "persistence_conflict"
	ErrClassPrice       = "price_unavailable"
)

// Metrics holds all Prometheus metrics for the sync engine.
type Metrics struct {
	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderFallback *prometheus.CounterVec

	// Sync metrics
	SyncRuns            *prometheus.CounterVec
	SyncErrors          *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	PagesFetched        prometheus.Counter
	TransactionsAdded   prometheus.Counter
	TransactionsSkipped prometheus.Counter
	TransactionsFailed  prometheus.Counter

	// Dedup metrics
	DedupHits       *prometheus.CounterVec
	DedupCacheSize  prometheus.Gauge
	DedupPortfolios prometheus.Gauge

	// Tip watcher metrics
	TipNotifications prometheus.Counter
	TipReconnects    prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "btc_wallet_sync"
	}

	return &Metrics{
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of HTTP request attempts per provider",
		}, []string{"provider"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total number of provider errors by class",
		}, []string{"provider", "class"}),
		ProviderFallback: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "fallback_total",
			Help:      "Times a provider was skipped and the next one tried",
		}, []string{"provider"}),

		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by terminal status",
		}, []string{"status"}),
		SyncErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "errors_total",
			Help:      "Total number of sync-level errors by class",
		}, []string{"class"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of sync runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Total number of provider pages fetched",
		}),
		TransactionsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transactions_added_total",
			Help:      "Total number of transactions persisted",
		}),
		TransactionsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transactions_skipped_total",
			Help:      "Total number of transactions skipped as duplicates",
		}),
		TransactionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transactions_failed_total",
			Help:      "Total number of transactions that failed enrichment or persistence",
		}),

		DedupHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "hits_total",
			Help:      "Duplicate hits by cache layer (local, shared, database)",
		}, []string{"layer"}),
		DedupCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "cache_size",
			Help:      "Number of fingerprints in the process-local cache",
		}),
		DedupPortfolios: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "portfolios",
			Help:      "Number of portfolios with cached fingerprints",
		}),

		TipNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tip",
			Name:      "notifications_total",
			Help:      "New-block notifications received from the websocket feed",
		}),
		TipReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tip",
			Name:      "reconnects_total",
			Help:      "Websocket reconnect attempts",
		}),
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
