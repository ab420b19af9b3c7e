// Package metrics owns the Prometheus registry and the collectors the store
// reports into.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvq"

type Config struct {
	ServiceName             string
	EnableDefaultCollectors bool
}

// Metrics holds a dedicated registry so tests and embedded stores never
// collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	scanned           prometheus.Counter
	matched           prometheus.Counter
	planCache         *prometheus.CounterVec
	openResultSets    prometheus.Gauge
	notifications     *prometheus.CounterVec
}

func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	service := cfg.ServiceName
	if service == "" {
		service = "kvq"
	}
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry)

	m := &Metrics{
		Registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Store operations by name and outcome.",
		}, []string{"op", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_scanned_entries_total",
			Help:      "Entries examined while evaluating queries.",
		}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_matched_entries_total",
			Help:      "Entries that satisfied a query filter.",
		}),
		planCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_cache_lookups_total",
			Help:      "Parsed-plan cache lookups by result.",
		}, []string{"result"}),
		openResultSets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_result_sets",
			Help:      "Result sets currently open.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_notifications_total",
			Help:      "Change notifications delivered to observers by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.operations,
		m.operationDuration,
		m.scanned,
		m.matched,
		m.planCache,
		m.openResultSets,
		m.notifications,
	)

	if cfg.EnableDefaultCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one store call. err decides the status label.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveScan(scanned, matched int) {
	if m == nil {
		return
	}
	m.scanned.Add(float64(scanned))
	m.matched.Add(float64(matched))
}

func (m *Metrics) PlanCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.planCache.WithLabelValues("hit").Inc()
	} else {
		m.planCache.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) SetOpenResultSets(n int) {
	if m == nil {
		return
	}
	m.openResultSets.Set(float64(n))
}

func (m *Metrics) NotificationDelivered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.notifications.WithLabelValues("delivered").Inc()
	} else {
		m.notifications.WithLabelValues("dropped").Inc()
	}
}
