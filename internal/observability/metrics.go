package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "heatspot_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RecordsIngested prometheus.Counter
	RecordsRejected *prometheus.CounterVec // labels: reason={malformed,out_of_bounds,header}
	RecordsEnriched prometheus.Counter
	EnrichFailures  prometheus.Counter
	Classifications *prometheus.CounterVec // labels: category, source={polygon,fallback,none}
	GeometryFaults  prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Run metrics.
	RunDuration prometheus.Histogram
	Runs        *prometheus.CounterVec // labels: outcome={success,partial,no_records,output_error,source_error}

	// Source and sink metrics.
	SourceCache    *prometheus.CounterVec // labels: result={hit,miss}
	RecordsLoaded  prometheus.Counter
	ArtifactWrites *prometheus.CounterVec // labels: artifact, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsIngested,
		m.RecordsRejected,
		m.RecordsEnriched,
		m.EnrichFailures,
		m.Classifications,
		m.GeometryFaults,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.RunDuration,
		m.Runs,
		m.SourceCache,
		m.RecordsLoaded,
		m.ArtifactWrites,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Detection rows accepted by the ingestor.",
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Detection rows or files skipped during ingestion, by reason.",
		}, []string{"reason"}),
		RecordsEnriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_enriched_total",
			Help:      "Detections that went through region classification.",
		}),
		EnrichFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_failures_total",
			Help:      "Detections kept with default labels after enrichment failed.",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Region labels assigned, by category and provenance.",
		}, []string{"category", "source"}),
		GeometryFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_faults_total",
			Help:      "Reference geometries that could not be used for containment tests.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of detections per processed chunk.",
			Buckets:   []float64{100, 1000, 5000, 10000, 25000, 50000, 100000, 500000},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of enriching one chunk.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_total",
			Help:      "Source file cache lookups by result.",
		}, []string{"result"}),
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Enriched detections accepted by batch loaders.",
		}),
		ArtifactWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_writes_total",
			Help:      "Output artifact writes by artifact and outcome.",
		}, []string{"artifact", "outcome"}),
	}
}
