package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Значения метки result.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultSkipped   = "skipped"
	ResultCreated   = "created"
	ResultUnchanged = "unchanged"
)

// Metrics — Prometheus метрики dagfactory.
//
// Все методы безопасны для nil получателя: компоненты, собранные
// без метрик, просто ничего не записывают.
type Metrics struct {
	registry *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	tasksBuilt    prometheus.Counter
	refreshes     *prometheus.CounterVec
	lastRefresh   prometheus.Gauge
	workflows     prometheus.Gauge
	registrations *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// NewMetrics создаёт метрики в собственном реестре.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dagfactory_workflow_builds_total",
			Help: "Workflow graph builds by result",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dagfactory_workflow_build_duration_seconds",
			Help:    "Duration of a single workflow graph build",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		tasksBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagfactory_tasks_built_total",
			Help: "Tasks instantiated across all successful builds",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dagfactory_refresh_total",
			Help: "Configuration refresh cycles by result",
		}, []string{"result"}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagfactory_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}),
		workflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagfactory_workflows_loaded",
			Help: "Workflows in the currently active set",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dagfactory_registrations_total",
			Help: "Workflow registrations by result",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dagfactory_http_requests_total",
			Help: "HTTP requests handled by the API",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		m.builds,
		m.buildDuration,
		m.tasksBuilt,
		m.refreshes,
		m.lastRefresh,
		m.workflows,
		m.registrations,
		m.httpRequests,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBuild записывает результат сборки одного workflow.
func (m *Metrics) ObserveBuild(d time.Duration, tasks int, err error) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(d.Seconds())
	if err != nil {
		m.builds.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.builds.WithLabelValues(ResultSuccess).Inc()
	m.tasksBuilt.Add(float64(tasks))
}

// SkipBuild отмечает workflow, пропущенный политикой skip.
func (m *Metrics) SkipBuild() {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(ResultSkipped).Inc()
}

// ObserveRefresh записывает результат цикла обновления.
func (m *Metrics) ObserveRefresh(at time.Time, workflows int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.refreshes.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.refreshes.WithLabelValues(ResultSuccess).Inc()
	m.lastRefresh.Set(float64(at.Unix()))
	m.workflows.Set(float64(workflows))
}

// ObserveRegistration записывает результат регистрации workflow.
// result — ResultCreated, ResultUnchanged или ResultFailure.
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// ObserveRequest записывает HTTP запрос.
func (m *Metrics) ObserveRequest(method, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, code).Inc()
}
