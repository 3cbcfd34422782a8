package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// Similarity cache metrics
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec
	CacheWritesTotal prometheus.CounterVec

	// Candidate pipeline metrics
	FallbackStageTotal     prometheus.CounterVec
	CandidatesReturned     prometheus.HistogramVec
	RecommendationDuration prometheus.HistogramVec

	// Moderation metrics
	ModerationDroppedTotal prometheus.CounterVec

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, registering them on first use
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_http_requests_total",
					Help: "Total HTTP requests by method, path and status",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recoserver_http_request_duration_seconds",
					Help:    "HTTP request latency by method and path",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path", "status"},
			),
			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_similarity_cache_hits_total",
					Help: "Similarity cache hits by source name",
				},
				[]string{"source"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_similarity_cache_misses_total",
					Help: "Similarity cache misses by source name",
				},
				[]string{"source"},
			),
			CacheWritesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_similarity_cache_writes_total",
					Help: "Similarity cache answer-set replacements",
				},
				[]string{"source"},
			),
			FallbackStageTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_fallback_stage_total",
					Help: "Requests served per candidate fallback stage",
				},
				[]string{"stage"},
			),
			CandidatesReturned: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recoserver_candidates_returned",
					Help:    "Final response sizes per profile",
					Buckets: []float64{0, 1, 5, 10, 20, 30, 50, 100},
				},
				[]string{"profile"},
			),
			RecommendationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recoserver_recommendation_duration_seconds",
					Help:    "End-to-end candidate generation latency per profile",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"profile"},
			),
			ModerationDroppedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_moderation_dropped_total",
					Help: "Candidates removed by moderation rule",
				},
				[]string{"rule"},
			),
			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recoserver_rate_limit_exceeded_total",
					Help: "Requests rejected by the rate limiter",
				},
				[]string{"scope"},
			),
		}
	})
	return instance
}
