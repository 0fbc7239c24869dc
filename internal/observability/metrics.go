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
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the relay.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active realtime connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of realtime connection events.",
		},
		[]string{"kind", "event"},
	)
	channelSubscribesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_channel_subscribes_total",
			Help: "Channel subscription attempts by outcome.",
		},
		[]string{"status"},
	)
	messagesAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_applied_total",
			Help: "Messages merged into the active conversation view.",
		},
	)
	messagesDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_deduped_total",
			Help: "Incoming messages dropped as duplicates of an already-applied id.",
		},
	)
	typingBroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_typing_broadcasts_total",
			Help: "Typing broadcasts emitted, labelled by flag.",
		},
		[]string{"flag"},
	)
	framesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_frames_rejected_total",
			Help: "Realtime frames rejected by the strict parser.",
		},
	)
	broadcastsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcasts_dropped_total",
			Help: "Client broadcasts dropped by the relay rate limiter.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
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
		channelSubscribesTotal,
		messagesAppliedTotal,
		messagesDedupedTotal,
		typingBroadcastsTotal,
		framesRejectedTotal,
		broadcastsDroppedTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
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

func IncChannelSubscribe(status string) {
	channelSubscribesTotal.WithLabelValues(status).Inc()
}

func IncMessageApplied() {
	messagesAppliedTotal.Inc()
}

func IncMessageDeduped() {
	messagesDedupedTotal.Inc()
}

func IncTypingBroadcast(typing bool) {
	typingBroadcastsTotal.WithLabelValues(strconv.FormatBool(typing)).Inc()
}

func IncFrameRejected() {
	framesRejectedTotal.Inc()
}

func IncBroadcastDropped() {
	broadcastsDroppedTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
