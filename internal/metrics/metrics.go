// Package metrics exposes prometheus collectors for retrieval and profiling.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP server metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go3dep",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "go3dep",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	// Remote service metrics
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go3dep",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Total requests sent to elevation services",
	}, []string{"service", "outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "go3dep",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Latency of elevation service requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"service"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "go3dep",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total response cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "go3dep",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total response cache misses",
	})

	// Profile metrics
	RefinementIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "go3dep",
		Subsystem: "profile",
		Name:      "refinement_iterations",
		Help:      "Spline densification rounds needed per profile",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})

	ProfilePoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "go3dep",
		Subsystem: "profile",
		Name:      "points",
		Help:      "Number of points in generated profiles",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 7),
	})
)

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, path string, status int, took time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}
