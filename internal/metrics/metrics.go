// Package metrics exposes prometheus instrumentation for the API and the
// renewal scheduler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics",
	fx.Provide(New),
)

type Metrics struct {
	registry *prometheus.Registry

	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobSkips    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	renewals      *prometheus.CounterVec
	notices       prometheus.Counter
	passesUsed    prometheus.Counter
	passPurchases prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics on its own registry so parallel tests never hit
// duplicate-registration panics on the default one.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhouse_scheduler_job_runs_total",
			Help: "Scheduler job executions by job name.",
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhouse_scheduler_job_errors_total",
			Help: "Scheduler job errors by job name.",
		}, []string{"job"}),
		jobSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhouse_scheduler_job_skips_total",
			Help: "Scheduler job runs skipped because another replica held the lock.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubhouse_scheduler_job_duration_seconds",
			Help:    "Scheduler job duration by job name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		renewals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhouse_renewals_total",
			Help: "Expired memberships handled by the processing pass, by outcome.",
		}, []string{"outcome"}),
		notices: factory.NewCounter(prometheus.CounterOpts{
			Name: "clubhouse_renewal_notices_total",
			Help: "Renewal reminder notices sent.",
		}),
		passesUsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "clubhouse_guest_passes_used_total",
			Help: "Guest passes burned at the kiosk.",
		}),
		passPurchases: factory.NewCounter(prometheus.CounterOpts{
			Name: "clubhouse_guest_pass_purchases_total",
			Help: "Guest pass purchases confirmed as paid.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhouse_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubhouse_http_request_duration_seconds",
			Help:    "HTTP request duration by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncJobRun(job string)   { m.jobRuns.WithLabelValues(job).Inc() }
func (m *Metrics) IncJobError(job string) { m.jobErrors.WithLabelValues(job).Inc() }
func (m *Metrics) IncJobSkip(job string)  { m.jobSkips.WithLabelValues(job).Inc() }

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) IncRenewal(outcome string) { m.renewals.WithLabelValues(outcome).Inc() }
func (m *Metrics) IncNotice()                { m.notices.Inc() }
func (m *Metrics) IncPassUsed()              { m.passesUsed.Inc() }
func (m *Metrics) IncPassPurchase()          { m.passPurchases.Inc() }

func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
