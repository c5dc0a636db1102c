// Package metrics exposes Prometheus metrics for migration runs.
// Every metric carries the instance alias a run writes to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RecordsTransferredTotal tracks records written, by outcome ("good" or "bad").
var RecordsTransferredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_records_transferred_total",
		Help: "Total records written to an instance, by outcome",
	},
	[]string{"instance", "type", "operation", "outcome"},
)

// ChunksTotal tracks the number of chunks submitted.
var ChunksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_chunks_total",
		Help: "Total chunks submitted",
	},
	[]string{"instance", "type", "operation"},
)

// ChunkFailuresTotal tracks chunks lost to transport failures.
var ChunkFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_chunk_failures_total",
		Help: "Total chunks lost to transport failures",
	},
	[]string{"instance", "type", "operation"},
)

// RecordsExportedTotal tracks records read into export artifacts.
var RecordsExportedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_records_exported_total",
		Help: "Total records exported",
	},
	[]string{"instance", "type"},
)

// IdentityMappingsTotal tracks old-to-new id mappings recorded.
var IdentityMappingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_identity_mappings_total",
		Help: "Total identity mappings recorded",
	},
	[]string{"instance", "type"},
)

// DeferredUpdatesTotal tracks records updated in the deferred reference pass.
var DeferredUpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_deferred_updates_total",
		Help: "Total records updated in the deferred reference pass",
	},
	[]string{"instance", "type"},
)

// SchemaMismatchesTotal tracks types and fields present on only one instance.
var SchemaMismatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_schema_mismatches_total",
		Help: "Total schema mismatches found",
	},
	[]string{"instance"},
)

// RunsTotal tracks finished runs, by outcome ("done" or "failed").
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datacopy_runs_total",
		Help: "Total finished runs, by outcome",
	},
	[]string{"instance", "outcome"},
)

// Phase tracks the run phase (value 1 for the current phase, 0 otherwise).
var Phase = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "datacopy_phase",
		Help: "Run phase (1 for current phase, 0 otherwise)",
	},
	[]string{"instance", "phase"},
)

// ChunkDuration tracks time from job creation to results for one chunk.
var ChunkDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "datacopy_chunk_duration_seconds",
		Help:    "Time to submit, await and read one chunk",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"instance", "operation"},
)

// PhaseDuration tracks time spent in each phase.
var PhaseDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "datacopy_phase_duration_seconds",
		Help:    "Time spent in each run phase",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	},
	[]string{"instance", "phase"},
)
