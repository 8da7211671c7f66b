package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the messaging client
type Metrics struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Real-time event metrics
	EventsTotal         *prometheus.CounterVec
	EventsDroppedTotal  *prometheus.CounterVec
	TransportReconnects *prometheus.CounterVec

	// Reconciliation metrics
	ConversationRefetches prometheus.Counter
	StaleFetchesDiscarded prometheus.Counter
	TypingExpiries        prometheus.Counter
	UnreadMessages        prometheus.Gauge
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			APIRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_api_requests_total",
					Help: "Total number of messaging API requests",
				},
				[]string{"operation", "status"},
			),
			APIRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chat_api_request_duration_seconds",
					Help:    "Messaging API request latency in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"operation"},
			),

			EventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_events_total",
					Help: "Total number of real-time events handled",
				},
				[]string{"kind"},
			),
			EventsDroppedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_events_dropped_total",
					Help: "Total number of real-time events that could not be decoded",
				},
				[]string{"reason"},
			),
			TransportReconnects: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_transport_reconnects_total",
					Help: "Total number of event transport reconnects",
				},
				[]string{"transport"},
			),

			ConversationRefetches: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chat_conversation_refetches_total",
					Help: "Conversation list refetches triggered by events for unknown conversations",
				},
			),
			StaleFetchesDiscarded: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chat_stale_fetches_discarded_total",
					Help: "Message pages discarded because another conversation became active",
				},
			),
			TypingExpiries: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chat_typing_expiries_total",
					Help: "Remote typing indicators removed by timeout",
				},
			),
			UnreadMessages: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chat_unread_messages",
					Help: "Unread messages across all loaded conversations",
				},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}

// RecordAPIRequest records one API call. status is the HTTP status, or 0 when
// the request never got a response.
func RecordAPIRequest(operation string, status int, duration time.Duration) {
	m := Get()
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequestsTotal.WithLabelValues(operation, label).Inc()
	m.APIRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent records a handled real-time event by kind
func RecordEvent(kind string) {
	Get().EventsTotal.WithLabelValues(kind).Inc()
}

// RecordDroppedEvent records an event that was discarded before dispatch
func RecordDroppedEvent(reason string) {
	Get().EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordReconnect records a transport reconnect
func RecordReconnect(transport string) {
	Get().TransportReconnects.WithLabelValues(transport).Inc()
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	Initialize()
	return promhttp.Handler()
}
