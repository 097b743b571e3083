// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ingestion metrics
	SourceFetchDuration *prometheus.HistogramVec
	SourceFetchRetries  *prometheus.CounterVec
	SourceBytes         prometheus.Counter

	// Extraction metrics
	VerticesExtracted prometheus.Gauge
	RowsSkipped       *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	CurvesStored      prometheus.Counter
	CurvesUnchanged   prometheus.Counter
	ArchiveErrors     prometheus.Counter

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	TenorClamps   prometheus.Counter
	CacheRequests *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
	LatestCurveDate        prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "fairrate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		SourceFetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_duration_seconds",
			Help:      "Source document fetch duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source", "status"}),
		SourceFetchRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_retries_total",
			Help:      "Total number of source fetch retries by reason",
		}, []string{"reason"}),
		SourceBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "bytes_fetched_total",
			Help:      "Total bytes of source documents fetched",
		}),

		// Extraction metrics
		VerticesExtracted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "vertices_last_run",
			Help:      "Clean vertices extracted by the last run",
		}),
		RowsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "rows_skipped_total",
			Help:      "Total rows dropped during extraction by reason",
		}, []string{"reason"}),

		// Pipeline metrics
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"stage"}),
		CurvesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "curves_stored_total",
			Help:      "Total number of curves written to the repository",
		}),
		CurvesUnchanged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "curves_unchanged_total",
			Help:      "Total number of rebuilt curves identical to the stored one",
		}),
		ArchiveErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "archive_errors_total",
			Help:      "Total number of failed curve archive uploads",
		}),

		// Query metrics
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "equivalence_total",
			Help:      "Total number of equivalence queries by indexation and outcome",
		}, []string{"indexation", "outcome"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query service operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		TenorClamps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "tenor_clamps_total",
			Help:      "Total number of queries whose tenor exceeded the curve horizon",
		}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "cache_requests_total",
			Help:      "Total number of response cache lookups by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Repository operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of repository operation errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
		LatestCurveDate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "latest_curve_reference_timestamp",
			Help:      "Unix timestamp (midnight UTC) of the newest stored reference date",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records one source fetch attempt sequence.
func (m *Metrics) RecordFetch(source, status string, d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.SourceFetchDuration.WithLabelValues(source, status).Observe(d.Seconds())
	if bytes > 0 {
		m.SourceBytes.Add(float64(bytes))
	}
}

// RecordFetchRetry records a retried fetch attempt.
func (m *Metrics) RecordFetchRetry(reason string) {
	if m == nil {
		return
	}
	m.SourceFetchRetries.WithLabelValues(reason).Inc()
}

// RecordExtraction records extraction statistics.
func (m *Metrics) RecordExtraction(accepted, skipped, duplicates, nonPositive int) {
	if m == nil {
		return
	}
	m.VerticesExtracted.Set(float64(accepted))
	m.RowsSkipped.WithLabelValues("malformed").Add(float64(skipped))
	m.RowsSkipped.WithLabelValues("duplicate").Add(float64(duplicates))
	m.RowsSkipped.WithLabelValues("non_positive").Add(float64(nonPositive))
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordPipelineRun records a finished pipeline run.
func (m *Metrics) RecordPipelineRun(status string, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.LastSuccessfulPipeline.Set(float64(finishedAt.Unix()))
	}
}

// RecordCurveStored records a stored curve and its reference date.
func (m *Metrics) RecordCurveStored(referenceDate time.Time) {
	if m == nil {
		return
	}
	m.CurvesStored.Inc()
	m.LatestCurveDate.Set(float64(referenceDate.Unix()))
}

// RecordCurveUnchanged records a rebuild that produced the stored fingerprint.
func (m *Metrics) RecordCurveUnchanged() {
	if m == nil {
		return
	}
	m.CurvesUnchanged.Inc()
}

// RecordArchiveError records a failed archive upload.
func (m *Metrics) RecordArchiveError() {
	if m == nil {
		return
	}
	m.ArchiveErrors.Inc()
}

// RecordQuery records an equivalence query outcome.
func (m *Metrics) RecordQuery(indexation, outcome string, clamped bool, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(indexation, outcome).Inc()
	m.QueryDuration.WithLabelValues("compute").Observe(d.Seconds())
	if clamped {
		m.TenorClamps.Inc()
	}
}

// RecordCache records a response cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordDBQuery records repository operation metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Pipeline run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDryRun  = "dry_run"
)
