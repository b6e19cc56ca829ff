package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huntstack_upstream_requests_total",
			Help: "Total requests to upstream providers",
		},
		[]string{"provider", "endpoint", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huntstack_upstream_latency_seconds",
			Help:    "Upstream request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "endpoint"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huntstack_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	RecommendationCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huntstack_recommendation_candidates",
			Help:    "Deduplicated candidate locations per recommendation request",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	EnrichmentFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huntstack_enrichment_failures_total",
			Help: "Weather enrichments that failed and fell back to no weather",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huntstack_http_requests_total",
			Help: "Total API requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huntstack_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huntstack_scheduler_runs_total",
			Help: "Background job runs by job and result",
		},
		[]string{"job", "result"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huntstack_llm_requests_total",
			Help: "Total LLM completion requests",
		},
		[]string{"provider", "status"},
	)
)

// Status buckets an HTTP status code for the status label.
func Status(code int) string {
	switch {
	case code == 0:
		return "error"
	case code == 429:
		return "rate_limited"
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "ok"
	}
}
