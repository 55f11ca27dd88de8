// Package metrics holds the Prometheus collectors of checkout and payment confirmation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront_checkout"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PromoChecks          *prometheus.CounterVec
	OrdersCreated        *prometheus.CounterVec
	DuplicateSubmissions prometheus.Counter
	MethodFallbacks      prometheus.Counter
	StatusPolls          *prometheus.CounterVec
	ManualConfirmations  *prometheus.CounterVec
	ConfirmationOutcomes *prometheus.CounterVec
	BackendLatencyMS     *prometheus.HistogramVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PromoChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_checks_total",
			Help:      "Promo applications by mode and result.",
		}, []string{"mode", "result"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order submissions by payment method and result.",
		}, []string{"payment_method", "result"}),
		DuplicateSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_submissions_total",
			Help:      "Order submissions suppressed because one was already in flight.",
		}),
		MethodFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_method_fallbacks_total",
			Help:      "Times the built-in payment method list was served.",
		}),
		StatusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Order status polls by outcome class.",
		}, []string{"outcome"}),
		ManualConfirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_confirmations_total",
			Help:      "Manual payment confirmations by result.",
		}, []string{"result"}),
		ConfirmationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmation_outcomes_total",
			Help:      "Terminal states reached by confirmation workflows.",
		}, []string{"flow", "state"}),
		BackendLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Storefront backend latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.PromoChecks,
		m.OrdersCreated,
		m.DuplicateSubmissions,
		m.MethodFallbacks,
		m.StatusPolls,
		m.ManualConfirmations,
		m.ConfirmationOutcomes,
		m.BackendLatencyMS,
	)
	return m
}

// Registry exposes the private registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PromoChecked(mode, result string) {
	if m == nil {
		return
	}
	m.PromoChecks.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) OrderSubmitted(method, result string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(method, result).Inc()
}

func (m *Metrics) DuplicateSubmission() {
	if m == nil {
		return
	}
	m.DuplicateSubmissions.Inc()
}

func (m *Metrics) MethodFallback() {
	if m == nil {
		return
	}
	m.MethodFallbacks.Inc()
}

func (m *Metrics) StatusPolled(outcome string) {
	if m == nil {
		return
	}
	m.StatusPolls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ManualConfirmation(result string) {
	if m == nil {
		return
	}
	m.ManualConfirmations.WithLabelValues(result).Inc()
}

func (m *Metrics) ConfirmationFinished(flow, state string) {
	if m == nil {
		return
	}
	m.ConfirmationOutcomes.WithLabelValues(flow, state).Inc()
}

func (m *Metrics) ObserveBackend(operation string, ms float64) {
	if m == nil {
		return
	}
	m.BackendLatencyMS.WithLabelValues(operation).Observe(ms)
}
