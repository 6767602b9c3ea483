// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/types"
)

// =============================================================================
// Collector
// =============================================================================

// Collector registers and records Prometheus metrics for the HTTP API,
// the migration pipeline, the cache, and the database pool. It satisfies
// the migration package's Metrics interface.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Migration pipeline metrics
	diffDuration          *prometheus.HistogramVec
	diffAnchors           *prometheus.HistogramVec
	diffDeletedNodes      *prometheus.HistogramVec
	planTransitionsTotal  *prometheus.CounterVec
	sessionsMarkedTotal   *prometheus.CounterVec
	sessionsSkippedTotal  *prometheus.CounterVec
	reconciliationsTotal  *prometheus.CounterVec
	checkpointBlocksTotal prometheus.Counter

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Database metrics
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers all metrics under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP metrics
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Migration pipeline metrics
	c.diffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diff_duration_seconds",
			Help:      "Time spent computing one transformation map",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"scenario"},
	)

	c.diffAnchors = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diff_anchors",
			Help:      "Number of anchors found per diff",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"scenario"},
	)

	c.diffDeletedNodes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diff_deleted_nodes",
			Help:      "Number of deleted nodes per diff",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"scenario"},
	)

	c.planTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_transitions_total",
			Help:      "Total number of plan lifecycle transitions",
		},
		[]string{"scenario", "status"},
	)

	c.sessionsMarkedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployment_sessions_marked_total",
			Help:      "Sessions marked for migration during deployments",
		},
		[]string{"scenario"},
	)

	c.sessionsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployment_sessions_skipped_total",
			Help:      "Sessions skipped during deployments",
		},
		[]string{"scenario"},
	)

	c.reconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total number of session reconciliations",
		},
		[]string{"action", "reason"},
	)

	c.checkpointBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_checkpoint_blocks_total",
			Help:      "Reconciliations deferred because a checkpoint was passed",
		},
	)

	// Cache metrics
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Database metrics
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// HTTP metrics
// =============================================================================

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// Migration pipeline metrics
// =============================================================================

// RecordDiff records one transformation-map computation.
func (c *Collector) RecordDiff(scenarioID string, duration time.Duration, anchors, deletedNodes int) {
	c.diffDuration.WithLabelValues(scenarioID).Observe(duration.Seconds())
	c.diffAnchors.WithLabelValues(scenarioID).Observe(float64(anchors))
	c.diffDeletedNodes.WithLabelValues(scenarioID).Observe(float64(deletedNodes))
}

// RecordPlanTransition records a plan entering a lifecycle state.
func (c *Collector) RecordPlanTransition(scenarioID string, status types.PlanStatus) {
	c.planTransitionsTotal.WithLabelValues(scenarioID, string(status)).Inc()
}

// RecordDeployment records the outcome of one plan deployment.
func (c *Collector) RecordDeployment(scenarioID string, marked, skipped int) {
	c.sessionsMarkedTotal.WithLabelValues(scenarioID).Add(float64(marked))
	c.sessionsSkippedTotal.WithLabelValues(scenarioID).Add(float64(skipped))
}

// RecordReconciliation records one reconciliation outcome.
func (c *Collector) RecordReconciliation(action types.ReconciliationAction, reason string, blockedByCheckpoint bool) {
	c.reconciliationsTotal.WithLabelValues(string(action), reason).Inc()
	if blockedByCheckpoint {
		c.checkpointBlocksTotal.Inc()
	}
}

// =============================================================================
// Cache metrics
// =============================================================================

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// Database metrics
// =============================================================================

// RecordDBConnections records database pool gauges.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records one database query.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// Helpers
// =============================================================================

// statusCode buckets an HTTP status code into a class label.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
