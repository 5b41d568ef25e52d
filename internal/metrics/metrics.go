// Package metrics declares the Prometheus instrumentation for the
// ingestion engine: archive fetch latency, tick/row throughput, and
// per-stage error counts, each scoped by currency pair.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArchiveFetchDuration measures HTTP archive download latency.
	ArchiveFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_archive_fetch_duration_seconds",
			Help:    "Duration of monthly archive downloads",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair", "variant"},
	)

	// ArchiveFetchErrors counts fetch failures by taxonomy kind.
	ArchiveFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_archive_fetch_errors_total",
			Help: "Total archive fetch failures",
		},
		[]string{"pair", "variant", "kind"},
	)

	// TicksInserted counts ticks actually inserted (post insert-or-ignore
	// dedup) per pair and variant.
	TicksInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_ticks_inserted_total",
			Help: "Total ticks inserted, excluding duplicates discarded by insert-or-ignore",
		},
		[]string{"pair", "variant"},
	)

	// MonthsProcessed counts months loaded, labeled by outcome.
	MonthsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_months_processed_total",
			Help: "Total months processed by outcome",
		},
		[]string{"pair", "outcome"}, // outcome: loaded, skipped, failed
	)

	// OHLCRowsWritten counts rows written by the OHLC Generator per run.
	OHLCRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_ohlc_rows_written_total",
			Help: "Total ohlc_1m rows (re)written",
		},
		[]string{"pair", "mode"}, // mode: full, range
	)

	// DBQueryDuration measures DuckDB statement latency for the
	// higher-cost store operations: bulk append and batched update (the
	// OHLC Generator's label pass and the Annotator are timed through the
	// latter; the OHLC aggregate insert itself is not timed).
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements issued by the store package",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair", "operation"},
	)

	// RunDuration measures one full orchestrator Run call end to end.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Duration of one orchestrator run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"pair"},
	)

	// CircuitBreakerState mirrors gobreaker's state for the archive
	// fetcher (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_archive_circuit_breaker_state",
			Help: "Archive fetch circuit breaker state: 0=closed, 1=half-open, 2=open",
		},
		[]string{"breaker"},
	)
)
