// Package metrics exposes Prometheus instrumentation for the workflow engine.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transitions counts committed status changes by entity and target status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigflow_transitions_total",
		Help: "Total number of committed workflow status transitions",
	}, []string{"entity", "status"})

	// OperationErrors counts failed engine operations by operation and error kind.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigflow_operation_errors_total",
		Help: "Total number of failed workflow operations by kind",
	}, []string{"operation", "kind"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gigflow_operation_latency_seconds",
		Help:    "Workflow operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigflow_sse_active_clients",
		Help: "Number of active SSE connections",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigflow_notifications_total",
		Help: "Outbound event notifications by result",
	}, []string{"result"})
)

// Track returns a func that records the operation latency when called.
func Track(operation string) func() {
	start := time.Now()
	return func() {
		OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func Transition(entity, status string) {
	Transitions.WithLabelValues(entity, status).Inc()
}

func OperationError(operation, kind string) {
	if kind == "" {
		kind = "internal"
	}
	OperationErrors.WithLabelValues(operation, kind).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
