// Package metrics owns the Prometheus registry for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "keystone"

// Metrics groups every collector the server exports.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	authOutcomes *prometheus.CounterVec
	logsDropped  prometheus.Counter
	wsConns      prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors, on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication verdicts by transport and state.",
		}, []string{"transport", "state"}),
		logsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_logs_dropped_total",
			Help:      "Request log entries dropped because the recorder buffer was full.",
		}),
		wsConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open GraphQL WebSocket connections.",
		}),
	}

	reg.MustRegister(
		m.requests,
		m.duration,
		m.authOutcomes,
		m.logsDropped,
		m.wsConns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveAuth matches session.Config.OnOutcome.
func (m *Metrics) ObserveAuth(t domain.Transport, o session.Outcome) {
	m.authOutcomes.WithLabelValues(string(t), o.Label()).Inc()
}

func (m *Metrics) RequestLogDropped() { m.logsDropped.Inc() }

func (m *Metrics) WebSocketOpened() { m.wsConns.Inc() }
func (m *Metrics) WebSocketClosed() { m.wsConns.Dec() }

// Runtime is a point-in-time view of process gauges for the dashboard.
type Runtime struct {
	Goroutines        float64 `json:"goroutines"`
	HeapAllocBytes    float64 `json:"heapAllocBytes"`
	ResidentBytes     float64 `json:"residentBytes"`
	OpenFDs           float64 `json:"openFds"`
	WebSocketSessions float64 `json:"websocketSessions"`
}

var runtimeGauges = map[string]func(*Runtime, float64){
	"go_goroutines":                     func(r *Runtime, v float64) { r.Goroutines = v },
	"go_memstats_heap_alloc_bytes":      func(r *Runtime, v float64) { r.HeapAllocBytes = v },
	"process_resident_memory_bytes":     func(r *Runtime, v float64) { r.ResidentBytes = v },
	"process_open_fds":                  func(r *Runtime, v float64) { r.OpenFDs = v },
	namespace + "_websocket_connections": func(r *Runtime, v float64) { r.WebSocketSessions = v },
}

// Runtime gathers the registry and picks out the runtime gauges. Gauges the
// platform does not provide (process metrics off Linux) stay zero.
func (m *Metrics) Runtime() (Runtime, error) {
	var rt Runtime
	families, err := m.registry.Gather()
	if err != nil {
		return rt, err
	}
	for _, mf := range families {
		set, ok := runtimeGauges[mf.GetName()]
		if !ok || mf.GetType() != dto.MetricType_GAUGE || len(mf.GetMetric()) == 0 {
			continue
		}
		set(&rt, mf.GetMetric()[0].GetGauge().GetValue())
	}
	return rt, nil
}
