package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PresenceSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatty_presence_sessions",
		Help: "Current number of registered websocket sessions",
	})
	MessagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatty_messages_sent_total",
		Help: "Total number of persisted chat messages",
	})
	EventsDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatty_events_delivered_total",
		Help: "Total number of realtime events delivered to sessions",
	}, []string{"event"})
	EventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatty_events_dropped_total",
		Help: "Total number of realtime events dropped (recipient offline or buffer full)",
	}, []string{"event"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(PresenceSessions, MessagesSentTotal, EventsDeliveredTotal, EventsDroppedTotal, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
