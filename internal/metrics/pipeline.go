package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query pipeline and index Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aero",
			Name:      "queries_total",
			Help:      "Served queries by outcome",
		},
		[]string{"outcome"}, // cache_hit / cache_miss / insufficient_context / failed
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aero",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	ResponseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aero",
			Name:      "response_cache_total",
			Help:      "Response cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // tier: local/durable, result: hit/miss/error
	)

	CompletionRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aero",
			Name:      "completion_request_duration_seconds",
			Help:      "Completion API request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"model", "status"},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aero",
			Name:      "index_chunks",
			Help:      "Number of chunks in the active vector index generation",
		},
	)

	IndexRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aero",
			Name:      "index_rebuilds_total",
			Help:      "Total vector index rebuilds",
		},
	)

	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aero",
			Name:      "ingest_documents_total",
			Help:      "Ingested documents by final status",
		},
		[]string{"status"}, // ready / failed
	)

	ActivityDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aero",
			Name:      "activity_events_dropped_total",
			Help:      "Activity events dropped because the recorder buffer was full",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers query pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(ResponseCacheTotal)
	prometheus.MustRegister(CompletionRequestDuration)
	prometheus.MustRegister(IndexSize)
	prometheus.MustRegister(IndexRebuildsTotal)
	prometheus.MustRegister(IngestDocumentsTotal)
	prometheus.MustRegister(ActivityDroppedTotal)
	pipelineMetricsRegistered = true
}
