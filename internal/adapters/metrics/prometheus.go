package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gepa_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gepa_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	IterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gepa_iterations_total",
		Help: "Total optimization-loop iterations",
	})

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gepa_mutations_total",
		Help: "Total mutation proposals by outcome",
	}, []string{"outcome"})

	RolloutsUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gepa_rollouts_used",
		Help: "Rollouts consumed by the current optimization run",
	})

	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gepa_pool_size",
		Help: "Current candidate pool size",
	})

	BestScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gepa_best_score",
		Help: "Best mean validation score in the pool",
	})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gepa_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"model", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gepa_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})
)
