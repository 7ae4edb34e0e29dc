// Package metrics provides Prometheus metrics for the assistant backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// message pipeline
	MessagesTotal     *prometheus.CounterVec
	ProcessDuration   *prometheus.HistogramVec
	IntentsTotal      *prometheus.CounterVec
	AgentTurns        prometheus.Histogram
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	DegradedTotal     prometheus.Counter
	CacheLookupsTotal *prometheus.CounterVec
	CoalescedTotal    prometheus.Counter
	RateLimitedTotal  prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	EventsProcessed   *prometheus.CounterVec
	WebsocketClients  prometheus.Gauge
	ServerStartTime   time.Time
}

// New registers every metric on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{ServerStartTime: time.Now()}

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)
	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dinedesk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.MessagesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_messages_total",
			Help: "Customer messages processed, by channel",
		},
		[]string{"channel"},
	)
	m.ProcessDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dinedesk_process_duration_seconds",
			Help:    "End-to-end message processing time",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"cached"},
	)
	m.IntentsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_intents_total",
			Help: "Classified intents",
		},
		[]string{"intent", "fallback"},
	)
	m.AgentTurns = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dinedesk_agent_turns",
			Help:    "Reasoner turns per agent run",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
	m.ToolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_tool_calls_total",
			Help: "Tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)
	m.ToolCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dinedesk_tool_call_duration_seconds",
			Help:    "Tool execution time",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"tool"},
	)
	m.DegradedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "dinedesk_degraded_replies_total",
		Help: "Replies produced by the fallback path",
	})
	m.CacheLookupsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_cache_lookups_total",
			Help: "Response cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
	m.CoalescedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "dinedesk_coalesced_requests_total",
		Help: "Duplicate concurrent messages served by an in-flight run",
	})
	m.RateLimitedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "dinedesk_rate_limited_total",
		Help: "Requests rejected by the per-restaurant rate limiter",
	})
	m.EventsPublished = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_events_published_total",
			Help: "Events written to the Redis stream",
		},
		[]string{"status"},
	)
	m.EventsProcessed = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinedesk_events_processed_total",
			Help: "Events handled by the worker pool",
		},
		[]string{"status"},
	)
	m.WebsocketClients = f.NewGauge(prometheus.GaugeOpts{
		Name: "dinedesk_websocket_clients",
		Help: "Open websocket chat connections",
	})

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dinedesk_uptime_seconds",
		Help: "Server uptime in seconds",
	}, func() float64 { return time.Since(m.ServerStartTime).Seconds() })

	return m
}

func (m *Metrics) ObserveHTTP(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveProcess(channel string, cached bool, d time.Duration) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(channel).Inc()
	m.ProcessDuration.WithLabelValues(boolLabel(cached)).Observe(d.Seconds())
}

func (m *Metrics) ObserveIntent(intent string, fallback bool) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(intent, boolLabel(fallback)).Inc()
}

func (m *Metrics) ObserveAgent(turns int, degraded bool) {
	if m == nil {
		return
	}
	m.AgentTurns.Observe(float64(turns))
	if degraded {
		m.DegradedTotal.Inc()
	}
}

func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.CoalescedTotal.Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) EventPublished(ok bool) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(okLabel(ok)).Inc()
}

func (m *Metrics) EventProcessed(ok bool) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(okLabel(ok)).Inc()
}

func (m *Metrics) WebsocketOpened() {
	if m != nil {
		m.WebsocketClients.Inc()
	}
}

func (m *Metrics) WebsocketClosed() {
	if m != nil {
		m.WebsocketClients.Dec()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
