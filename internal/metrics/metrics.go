// Package metrics holds the prometheus collectors exported by assetflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one process. All methods are safe on a
// nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	runsTotal      *prometheus.CounterVec
	browserEvents  *prometheus.CounterVec
	browserClients prometheus.Gauge
	serverEvents   *prometheus.CounterVec
	watchEvents    *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetflow_tasks_total",
			Help: "Tasks finished, by task and final status.",
		}, []string{"task", "status"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assetflow_task_duration_seconds",
			Help:    "Task action duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"task"}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetflow_runs_total",
			Help: "Executor runs, by status.",
		}, []string{"status"}),
		browserEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetflow_livereload_messages_total",
			Help: "Messages broadcast to browsers, by type.",
		}, []string{"type"}),
		browserClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assetflow_livereload_clients",
			Help: "Connected live-reload browsers.",
		}),
		serverEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetflow_server_events_total",
			Help: "Development server lifecycle events, by type.",
		}, []string{"event"}),
		watchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetflow_watch_triggers_total",
			Help: "Watch rules triggered, by rule.",
		}, []string{"rule"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTask records a finished task.
func (m *Metrics) ObserveTask(task, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(task, status).Inc()
	if d > 0 {
		m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// ObserveBroadcast records a message sent to browsers.
func (m *Metrics) ObserveBroadcast(kind string) {
	if m == nil {
		return
	}
	m.browserEvents.WithLabelValues(kind).Inc()
}

// SetClients sets the connected browser count.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.browserClients.Set(float64(n))
}

// ObserveServerEvent records a supervisor lifecycle event.
func (m *Metrics) ObserveServerEvent(event string) {
	if m == nil {
		return
	}
	m.serverEvents.WithLabelValues(event).Inc()
}

// ObserveWatch records a triggered watch rule.
func (m *Metrics) ObserveWatch(rule string) {
	if m == nil {
		return
	}
	m.watchEvents.WithLabelValues(rule).Inc()
}
