// Package metrics exposes the builder's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KmersPartitionedTotal counts valid k-mer windows written to buckets.
	KmersPartitionedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_kmers_partitioned_total",
			Help: "Total number of k-mer windows routed to a bucket",
		},
	)

	// WindowsSkippedTotal counts windows dropped for invalid symbols.
	WindowsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_windows_skipped_total",
			Help: "Total number of k-mer windows skipped because of invalid symbols",
		},
	)

	SequencesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_sequences_skipped_total",
			Help: "Total number of input sequences shorter than k",
		},
	)

	BucketSpillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_bucket_spills_total",
			Help: "Total number of in-memory bucket chunks spilled to disk",
		},
	)

	BucketSpillBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_bucket_spill_bytes_total",
			Help: "Total uncompressed bytes written to spill files",
		},
	)

	SpillRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_spill_retries_total",
			Help: "Total number of retried spill writes",
		},
	)

	// BucketsProcessedTotal counts finished bucket tasks per stage.
	BucketsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdbg_buckets_processed_total",
			Help: "Total number of bucket tasks finished",
		},
		[]string{"stage"}, // "dedup", "links", "unitig"
	)

	StageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdbg_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)

	ColorSetsInterned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cdbg_color_sets",
			Help: "Number of distinct color sets in the dictionary",
		},
	)

	UnitigsBuiltTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_unitigs_built_total",
			Help: "Total number of unitigs in finished graphs",
		},
	)

	ForcedClosedEndsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdbg_forced_closed_ends_total",
			Help: "Total number of open fragment ends closed without a partner",
		},
	)
)
