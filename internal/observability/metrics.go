// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scraping metrics
	PostsScraped      *prometheus.CounterVec
	PostsDeduplicated *prometheus.CounterVec
	PostsDropped      *prometheus.CounterVec
	SourceFailures    *prometheus.CounterVec
	CommentsCollected prometheus.Counter

	// Token resolution metrics
	SymbolsResolved   *prometheus.CounterVec
	ResolverQueueWait prometheus.Histogram

	// Enrichment metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderCooldown *prometheus.GaugeVec
	DerivedAddresses *prometheus.CounterVec
	CoinsEnriched    prometheus.Counter

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	StartsRejected    prometheus.Counter

	// Event bus metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	Subscribers     prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulScrape   prometheus.Gauge
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "memecoin_radar"
	}

	return &Metrics{
		// Scraping metrics
		PostsScraped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "posts_scraped_total",
			Help:      "Total number of posts scraped by source",
		}, []string{"source"}),
		PostsDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "posts_deduplicated_total",
			Help:      "Total number of posts skipped as duplicates by source",
		}, []string{"source"}),
		PostsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "posts_dropped_total",
			Help:      "Total number of posts dropped after failed store appends",
		}, []string{"source"}),
		SourceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "source_failures_total",
			Help:      "Total number of source tasks terminated by an error",
		}, []string{"source"}),
		CommentsCollected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "comments_collected_total",
			Help:      "Total number of comment texts collected",
		}),

		// Token resolution metrics
		SymbolsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "symbols_resolved_total",
			Help:      "Total number of resolution attempts by outcome",
		}, []string{"outcome"}),
		ResolverQueueWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting on the oracle semaphore",
			Buckets:   prometheus.DefBuckets,
		}),

		// Enrichment metrics
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "provider_calls_total",
			Help:      "Total number of provider lookups by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "provider_latency_seconds",
			Help:      "Provider lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderCooldown: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "provider_cooldown",
			Help:      "Whether a provider is currently on rate-limit cool-down",
		}, []string{"provider"}),
		DerivedAddresses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "derived_addresses_total",
			Help:      "Total number of program-derived addresses accepted from providers",
		}, []string{"provider"}),
		CoinsEnriched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "coins_enriched_total",
			Help:      "Total number of coin entries produced",
		}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline stage runs by status",
		}, []string{"stage", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline stage execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		StartsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "starts_rejected_total",
			Help:      "Total number of start requests rejected while busy",
		}),

		// Event bus metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by type",
		}, []string{"type"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of events dropped for slow subscribers",
		}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Current number of event bus subscribers",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulScrape: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scrape_timestamp",
			Help:      "Unix timestamp of last successful scrape run",
		}),
		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPostScraped increments the posts scraped counter for a source.
func RecordPostScraped(source string) {
	DefaultMetrics.PostsScraped.WithLabelValues(source).Inc()
}

// RecordDuplicate increments the deduplication counter for a source.
func RecordDuplicate(source string) {
	DefaultMetrics.PostsDeduplicated.WithLabelValues(source).Inc()
}

// RecordPostDropped increments the dropped posts counter for a source.
func RecordPostDropped(source string) {
	DefaultMetrics.PostsDropped.WithLabelValues(source).Inc()
}

// RecordSourceFailure increments the failed source tasks counter.
func RecordSourceFailure(source string) {
	DefaultMetrics.SourceFailures.WithLabelValues(source).Inc()
}

// RecordCommentsCollected adds to the collected comments counter.
func RecordCommentsCollected(n int) {
	DefaultMetrics.CommentsCollected.Add(float64(n))
}

// RecordResolution records a token resolution attempt outcome
// ("fast_path", "oracle", "miss" or "error").
func RecordResolution(outcome string) {
	DefaultMetrics.SymbolsResolved.WithLabelValues(outcome).Inc()
}

// RecordResolverWait records time spent waiting on the oracle semaphore.
func RecordResolverWait(seconds float64) {
	DefaultMetrics.ResolverQueueWait.Observe(seconds)
}

// RecordProviderCall records a provider lookup outcome
// ("hit", "miss", "error", "rate_limited" or "skipped").
func RecordProviderCall(provider, outcome string, seconds float64) {
	DefaultMetrics.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

// SetProviderCooldown flips the cool-down gauge for a provider.
func SetProviderCooldown(provider string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	DefaultMetrics.ProviderCooldown.WithLabelValues(provider).Set(v)
}

// RecordDerivedAddress counts a provider-supplied address that is not on
// the ed25519 curve.
func RecordDerivedAddress(provider string) {
	DefaultMetrics.DerivedAddresses.WithLabelValues(provider).Inc()
}

// RecordCoinEnriched increments the enriched coins counter.
func RecordCoinEnriched() {
	DefaultMetrics.CoinsEnriched.Inc()
}

// RecordPipelineRun records a pipeline stage run.
func RecordPipelineRun(stage, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(stage, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStartRejected increments the rejected starts counter.
func RecordStartRejected() {
	DefaultMetrics.StartsRejected.Inc()
}

// RecordEventPublished increments the published events counter for a type.
func RecordEventPublished(eventType string) {
	DefaultMetrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped increments the dropped events counter.
func RecordEventDropped() {
	DefaultMetrics.EventsDropped.Inc()
}

// SetSubscribers updates the subscriber gauge.
func SetSubscribers(n int) {
	DefaultMetrics.Subscribers.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
