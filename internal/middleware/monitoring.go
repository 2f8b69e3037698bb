package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// MonitoringMiddleware handles metrics collection and monitoring
type MonitoringMiddleware struct {
	logger zerolog.Logger
}

// Prometheus metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	graphqlOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_operations_total",
			Help: "Total number of GraphQL operations by kind and outcome",
		},
		[]string{"operation", "status"},
	)

	graphqlGuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_guard_rejections_total",
			Help: "GraphQL operations rejected by the security guard",
		},
		[]string{"rule"},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	cdcEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_events_total",
			Help: "Change events delivered to subscribers",
		},
		[]string{"operation"},
	)

	schemaReflections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_reflections_total",
			Help: "Catalog reflection runs",
		},
	)
)

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(logger zerolog.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{logger: logger}
}

// Metrics collects request metrics for every endpoint.
func (m *MonitoringMiddleware) Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordGraphQLOperation counts one executed operation.
func RecordGraphQLOperation(operation, status string) {
	graphqlOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordGuardRejection counts a guard rejection by rule.
func RecordGuardRejection(rule string) {
	graphqlGuardRejections.WithLabelValues(rule).Inc()
}

// WebSocketOpened tracks a new subscription connection.
func WebSocketOpened() {
	websocketConnections.Inc()
}

// WebSocketClosed tracks a closed subscription connection.
func WebSocketClosed() {
	websocketConnections.Dec()
}

// RecordCDCEvent counts one delivered change event.
func RecordCDCEvent(operation string) {
	cdcEventsTotal.WithLabelValues(operation).Inc()
}

// RecordSchemaReflection counts a catalog reflection run.
func RecordSchemaReflection() {
	schemaReflections.Inc()
}
