// Package metrics defines the prometheus counters and histograms an
// embedding process can register to observe a backup or restore run: files
// and bytes scanned/copied/sparse-skipped, and catalog query latency. No
// HTTP exposition is provided — spec.md's boundary list excludes it — so
// this package only builds prometheus.Collectors; wiring them into an
// /metrics endpoint or a push gateway is the embedder's job.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cronobak/cronobak/pipeline"
)

// Metrics holds one run's worth of prometheus collectors. Construct with
// New, register the result of Collectors with whatever prometheus.Registry
// the embedder owns, then pass Metrics itself into the pipeline status
// callback and the catalog-operation wrapper below.
type Metrics struct {
	FilesScanned  prometheus.Counter
	BytesScanned  prometheus.Counter
	FilesCopied   prometheus.Counter
	SymlinksCopied prometheus.Counter
	SparsePartsSkipped prometheus.Counter
	BytesCopied   prometheus.Counter

	CatalogQueryDuration *prometheus.HistogramVec
}

// New builds a fresh, unregistered set of collectors for one run.
func New() *Metrics {
	return &Metrics{
		FilesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cronobak", Name: "files_scanned_total",
			Help: "Number of non-directory entries recorded by the scanner.",
		}),
		BytesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cronobak", Name: "bytes_scanned_total",
			Help: "Sum of file sizes observed by the scanner.",
		}),
		FilesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cronobak", Name: "files_copied_total",
			Help: "Number of regular files and special nodes materialised by the pipeline writer.",
		}),
		SymlinksCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cronobak", Name: "symlinks_copied_total",
			Help: "Number of symlinks materialised by the pipeline writer.",
		}),
		SparsePartsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cronobak", Name: "sparse_parts_skipped_total",
			Help: "Number of 64 KiB parts represented as holes instead of written.",
		}),
		BytesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cronobak", Name: "bytes_copied_total",
			Help: "Sum of bytes the pipeline reader has read from source files.",
		}),
		CatalogQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cronobak", Name: "catalog_query_duration_seconds",
			Help:    "Latency of catalog operations, labeled by operation name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Collectors returns every collector this package registers, for an
// embedder to pass to a prometheus.Registry.Register (or MustRegister).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesScanned, m.BytesScanned,
		m.FilesCopied, m.SymlinksCopied, m.SparsePartsSkipped, m.BytesCopied,
		m.CatalogQueryDuration,
	}
}

// StatusFn returns a pipeline.Status callback that folds GlobalBytesDone
// (cumulative) into BytesCopied (a counter, so only the delta since the
// last call is added); next chains to an optional caller-supplied callback
// (e.g. the CLI's progress line), which still receives every status tick.
func (m *Metrics) StatusFn(next func(pipeline.Status)) func(pipeline.Status) {
	var last int64

	return func(s pipeline.Status) {
		if delta := s.GlobalBytesDone - last; delta > 0 {
			m.BytesCopied.Add(float64(delta))
		}

		last = s.GlobalBytesDone

		if next != nil {
			next(s)
		}
	}
}

// TimeCatalogOp runs fn, recording its latency under the named operation
// label regardless of outcome.
func (m *Metrics) TimeCatalogOp(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.CatalogQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	return err
}
