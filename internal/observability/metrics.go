package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reveal_http_requests_total",
			Help: "Total number of HTTP requests processed by the reveal service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reveal_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reveal_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reveal_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	subscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reveal_subscriptions_active",
			Help: "Number of live snapshot subscriptions.",
		},
		[]string{"kind"},
	)
	reconcileRevealedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reveal_reconcile_revealed_total",
			Help: "Total number of messages whose reveal flag was persisted.",
		},
	)
	reconcileGroupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reveal_reconcile_group_failures_total",
			Help: "Total number of group lookups that failed during reconciliation.",
		},
	)
	reconcileCommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reveal_reconcile_commit_failures_total",
			Help: "Total number of reveal batches that failed to commit.",
		},
	)
	orphansDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reveal_orphans_deleted_total",
			Help: "Total number of messages deleted because their group no longer exists.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reveal_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		subscriptionsActive,
		reconcileRevealedTotal,
		reconcileGroupFailuresTotal,
		reconcileCommitFailuresTotal,
		orphansDeletedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncSubscriptions(kind string) {
	subscriptionsActive.WithLabelValues(kind).Inc()
}

func DecSubscriptions(kind string) {
	subscriptionsActive.WithLabelValues(kind).Dec()
}

func AddRevealed(n int64) {
	reconcileRevealedTotal.Add(float64(n))
}

func IncReconcileGroupFailure() {
	reconcileGroupFailuresTotal.Inc()
}

func IncReconcileCommitFailure() {
	reconcileCommitFailuresTotal.Inc()
}

func AddOrphansDeleted(n int64) {
	orphansDeletedTotal.Add(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
