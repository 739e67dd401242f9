// Package telemetry exposes Prometheus metrics for the pay order service.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payorder"

// providerBuckets covers sub-second lookups up to retried multi-second calls
var providerBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds the service collectors on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated    *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	rejections       prometheus.Counter
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerAttempts *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors. Go runtime and process
// collectors are included when withRuntime is set.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Pay orders created, by mode.",
		}, []string{"mode"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed pay order status transitions.",
		}, []string{"from", "to", "trigger"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_rejections_total",
			Help:      "Submitted transactions rejected without a status change.",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "External provider calls after retries, by outcome.",
		}, []string{"operation", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Wall time of provider calls including retries.",
			Buckets:   providerBuckets,
		}, []string{"operation"}),
		providerAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_attempts",
			Help:      "Attempts needed per provider call.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job attempts, by job type and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of one background job attempt.",
			Buckets:   providerBuckets,
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		m.ordersCreated,
		m.transitions,
		m.rejections,
		m.providerCalls,
		m.providerDuration,
		m.providerAttempts,
		m.httpRequests,
		m.httpDuration,
		m.jobRuns,
		m.jobDuration,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// RegisterDB exports the connection pool statistics of db under the given name
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Handle counts pay order events. It is subscribed to the event bus.
func (m *Metrics) Handle(_ context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *payorder.PayOrderCreatedEvent:
		m.ordersCreated.WithLabelValues(string(e.Mode)).Inc()
	case *payorder.PayOrderTransitionedEvent:
		m.transitions.WithLabelValues(string(e.From), string(e.To), string(e.Trigger)).Inc()
	case *payorder.PayOrderPaymentRejectedEvent:
		m.rejections.Inc()
	}
	return nil
}

// EventTypes returns nil so every event reaches the collector
func (m *Metrics) EventTypes() []string {
	return nil
}

// ObserveProviderCall records one retried provider call
func (m *Metrics) ObserveProviderCall(operation string, attempts int, elapsed time.Duration, err error) {
	m.providerCalls.WithLabelValues(operation, providerOutcome(err)).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	m.providerAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

// ObserveHTTPRequest records one served request
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveJob records one scheduler job attempt
func (m *Metrics) ObserveJob(jobType string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.jobRuns.WithLabelValues(jobType, outcome).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

func providerOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, payorder.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, payorder.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

var _ shared.EventHandler = (*Metrics)(nil)
