package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nhbmarket/core/events"
)

// Outcome event types counted by AuctionMetrics.outcomes. Kept as literals so
// the metrics package does not depend on the engine.
var outcomeEvents = map[string]string{
	"auction.settled":          "sold",
	"auction.reserve_not_met":  "returned_reserve_not_met",
	"auction.emergency_closed": "emergency_closed",
}

// AuctionMetrics tracks marketplace activity. It implements events.Emitter so
// it can be attached directly to the committed event stream.
type AuctionMetrics struct {
	registry  *prometheus.Registry
	events    *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	paused    prometheus.Gauge
}

// NewAuctionMetrics creates the collectors on a dedicated registry.
func NewAuctionMetrics(namespace string) *AuctionMetrics {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "nhbmarket"
	}
	m := &AuctionMetrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "events_total",
			Help:      "Committed domain events segmented by type.",
		}, []string{"type"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "outcomes_total",
			Help:      "Terminal auction outcomes segmented by status.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route, method and status code.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "throttles_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"reason"}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "paused",
			Help:      "Set to 1 while the auction module is paused.",
		}),
	}
	m.registry.MustRegister(m.events, m.outcomes, m.requests, m.latency, m.throttles, m.paused)
	return m
}

// Emit implements events.Emitter.
func (m *AuctionMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	if eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
	switch eventType {
	case "auction.paused":
		m.paused.Set(1)
	case "auction.unpaused":
		m.paused.Set(0)
	case "auction.cancelled":
		status := "cancelled"
		if payload := events.Payload(evt); payload != nil {
			if s := payload.Attributes["status"]; s != "" {
				status = s
			}
		}
		m.outcomes.WithLabelValues(status).Inc()
	default:
		if status, ok := outcomeEvents[eventType]; ok {
			m.outcomes.WithLabelValues(status).Inc()
		}
	}
}

// ObserveRequest records the outcome of an HTTP request.
func (m *AuctionMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rate-limited request.
func (m *AuctionMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Registry exposes the underlying registry.
func (m *AuctionMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *AuctionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
