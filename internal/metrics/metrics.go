package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headline_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "headline_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	AgentRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headline_agent_runs_total",
		Help: "Agent pipeline runs by outcome.",
	}, []string{"outcome"})

	AgentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "headline_agent_run_duration_seconds",
		Help:    "Agent pipeline latency.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)
