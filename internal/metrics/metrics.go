package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceExtractTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etlpipe_source_extract_total",
			Help: "Total number of source extractions",
		},
		[]string{"method", "status"},
	)

	SourceExtractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etlpipe_source_extract_duration_seconds",
			Help:    "Duration of source extractions",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 0.05s to ~410s
		},
		[]string{"method"},
	)

	RowsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etlpipe_rows_extracted_total",
			Help: "Total number of rows parsed from sources",
		},
		[]string{"source"},
	)

	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etlpipe_rows_written_total",
			Help: "Total number of rows written to destinations",
		},
		[]string{"destination", "table"},
	)

	TableWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etlpipe_table_write_total",
			Help: "Total number of table writes",
		},
		[]string{"destination", "status"},
	)

	RunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etlpipe_run_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "etlpipe_run_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s to ~820s
		},
	)
)
