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
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Total number of messages persisted.",
		},
	)
	notificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_notifications_created_total",
			Help: "Total number of notifications stored, by type.",
		},
		[]string{"type"},
	)
	notificationsSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_notifications_suppressed_total",
			Help: "Total number of notification events suppressed, by reason.",
		},
		[]string{"reason"},
	)
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_cache_requests_total",
			Help: "Unread-count cache lookups, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		messagesSentTotal,
		notificationsCreatedTotal,
		notificationsSuppressedTotal,
		cacheRequestsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
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

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncMessageSent() {
	messagesSentTotal.Inc()
}

func IncNotificationCreated(notifType string) {
	notificationsCreatedTotal.WithLabelValues(notifType).Inc()
}

func IncNotificationSuppressed(reason string) {
	notificationsSuppressedTotal.WithLabelValues(reason).Inc()
}

func IncCacheResult(result string) {
	cacheRequestsTotal.WithLabelValues(result).Inc()
}
