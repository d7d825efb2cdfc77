// Package metrics exposes prometheus collectors for the ledger daemon.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace      = "pointsledger"
	unmatchedRoute = "unmatched"
	categoryNone   = "none"
)

// Collectors holds the daemon collectors on a private registry.
type Collectors struct {
	registry     *prometheus.Registry
	operations   *prometheus.CounterVec
	attempts     prometheus.Histogram
	pointsMoved  *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Collectors {
	metrics := &Collectors{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by outcome.",
			},
			[]string{"operation", "status", "category"},
		),
		attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_attempts",
				Help:      "Optimistic attempts needed per ledger operation.",
				Buckets:   []float64{1, 2, 3, 5, 8, 13},
			},
		),
		pointsMoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "points_total",
				Help:      "Absolute points carried by successful operations.",
			},
			[]string{"operation"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "notification_queue_depth",
				Help:      "Notifications waiting for delivery.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"route", "method", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	metrics.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.operations,
		metrics.attempts,
		metrics.pointsMoved,
		metrics.queueDepth,
		metrics.httpRequests,
		metrics.httpLatency,
	)
	return metrics
}

// Registry exposes the underlying registry.
func (metrics *Collectors) Registry() *prometheus.Registry {
	return metrics.registry
}

// Handler serves the registry in the prometheus exposition format.
func (metrics *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{Registry: metrics.registry})
}

// LogOperation implements ledger.OperationLogger.
func (metrics *Collectors) LogOperation(_ context.Context, entry ledger.OperationLog) {
	category := ledger.Category(entry.Error)
	if category == "" {
		category = categoryNone
	}
	metrics.operations.WithLabelValues(entry.Operation, entry.Status, category).Inc()
	if entry.Attempts > 0 {
		metrics.attempts.Observe(float64(entry.Attempts))
	}
	if entry.Error == nil && entry.Amount != 0 {
		metrics.pointsMoved.WithLabelValues(entry.Operation).Add(float64(entry.Amount.Abs().Int64()))
	}
}

// ObserveQueueDepth records the notification queue length.
func (metrics *Collectors) ObserveQueueDepth(depth int) {
	metrics.queueDepth.Set(float64(depth))
}

// Middleware records request counts and latency per matched route.
func (metrics *Collectors) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := strconv.Itoa(ctx.Writer.Status())
		metrics.httpRequests.WithLabelValues(route, ctx.Request.Method, status).Inc()
		metrics.httpLatency.WithLabelValues(ctx.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
