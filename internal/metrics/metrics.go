// Package metrics exposes Prometheus collectors for the HTTP layer and the
// membership policy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	wsClients prometheus.Gauge
	backups   *prometheus.CounterVec
	lastOK    prometheus.Gauge
	notifs    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "larder",
			Name:      "policy_decisions_total",
			Help:      "Membership policy operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "larder",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "larder",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "larder",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "larder",
			Name:      "backups_total",
			Help:      "Database snapshots by outcome.",
		}, []string{"outcome"}),
		lastOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "larder",
			Name:      "backup_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot.",
		}),
		notifs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "larder",
			Name:      "notifications_total",
			Help:      "Push and email deliveries by notification type and outcome.",
		}, []string{"type", "outcome"}),
	}
	m.registry.MustRegister(
		m.decisions, m.requests, m.duration, m.wsClients, m.backups, m.lastOK, m.notifs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDecision matches the membership policy's observer signature.
func (m *Metrics) ObserveDecision(op, outcome string) {
	m.decisions.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetWebsocketClients matches the websocket hub's client-count hook.
func (m *Metrics) SetWebsocketClients(n int) {
	m.wsClients.Set(float64(n))
}

// ObserveBackup matches the backup manager's result hook.
func (m *Metrics) ObserveBackup(ok bool) {
	if !ok {
		m.backups.WithLabelValues("error").Inc()
		return
	}
	m.backups.WithLabelValues("ok").Inc()
	m.lastOK.SetToCurrentTime()
}

func (m *Metrics) ObserveNotification(notifType, outcome string) {
	m.notifs.WithLabelValues(notifType, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
