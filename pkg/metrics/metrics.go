// Package metrics exposes Prometheus collectors for the billing and usage
// paths and the HTTP layer. Collectors live on a private registry so tests
// can build as many instances as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

// Metrics owns the service's Prometheus collectors on a private registry.
// It implements billing.Recorder and usage.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	tierChanges     *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	usageCalls      prometheus.Counter
	quotaRejections prometheus.Counter
	counterRefills  prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

// New registers every collector together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_change_requests_total",
			Help:      "Tier change requests by resolution path (free, checkout, noop).",
		}, []string{"path"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Processor confirmations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		usageCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_calls_total",
			Help:      "Product calls counted against a quota.",
		}),
		quotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Product calls refused because the quota was exhausted.",
		}),
		counterRefills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_counter_refills_total",
			Help:      "Usage counters reset at the start of a new period.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tierChanges,
		m.reconciliations,
		m.usageCalls,
		m.quotaRejections,
		m.counterRefills,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// TierChangeRequested counts a tier change by the path it took.
func (m *Metrics) TierChangeRequested(path string) {
	m.tierChanges.WithLabelValues(path).Inc()
}

// ConfirmationReconciled counts a processor confirmation by kind and outcome.
func (m *Metrics) ConfirmationReconciled(kind, outcome string) {
	m.reconciliations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) UsageIncremented() { m.usageCalls.Inc() }

func (m *Metrics) QuotaRejected() { m.quotaRejections.Inc() }

func (m *Metrics) CountersRefilled(n int64) {
	m.counterRefills.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware observes request durations labelled by chi route pattern, so
// path parameters do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
