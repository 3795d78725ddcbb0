package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects SDK metrics.
type Metrics interface {
	RecordValidation(ctx context.Context, labels ValidationLabels)
	RecordValidationLatency(ctx context.Context, duration float64, labels ValidationLabels)
	RecordKeySetFetch(ctx context.Context, duration float64, labels FetchLabels)
}

// ValidationLabels contains validation metric dimensions.
type ValidationLabels struct {
	Result string // authenticated or rejected
	Kind   string // error kind, empty when authenticated
}

// FetchLabels contains JWKS fetch metric dimensions.
type FetchLabels struct {
	Reason  string // initial, expired, unknown_kid, manual
	Outcome string // success or error
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordValidation(context.Context, ValidationLabels)                 {}
func (NopMetrics) RecordValidationLatency(context.Context, float64, ValidationLabels) {}
func (NopMetrics) RecordKeySetFetch(context.Context, float64, FetchLabels)           {}

// PrometheusMetrics is the Prometheus implementation of Metrics.
type PrometheusMetrics struct {
	validations       *prometheus.CounterVec
	validationLatency *prometheus.HistogramVec
	keySetFetches     *prometheus.CounterVec
	keySetFetchTime   prometheus.Histogram
}

// NewPrometheusMetrics registers the SDK collectors on reg. Use a dedicated registry per
// validator when running several tenants in one process.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corbado_session_validations_total",
			Help: "Total number of session token validations by result and error kind",
		}, []string{"result", "kind"}),
		validationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corbado_session_validation_duration_seconds",
			Help:    "Histogram of session token validation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		keySetFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corbado_jwks_fetches_total",
			Help: "Total number of JWKS fetches by reason and outcome",
		}, []string{"reason", "outcome"}),
		keySetFetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "corbado_jwks_fetch_duration_seconds",
			Help:    "Histogram of JWKS fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *PrometheusMetrics) RecordValidation(_ context.Context, labels ValidationLabels) {
	m.validations.WithLabelValues(labels.Result, labels.Kind).Inc()
}

func (m *PrometheusMetrics) RecordValidationLatency(_ context.Context, duration float64, labels ValidationLabels) {
	m.validationLatency.WithLabelValues(labels.Result).Observe(duration)
}

func (m *PrometheusMetrics) RecordKeySetFetch(_ context.Context, duration float64, labels FetchLabels) {
	m.keySetFetches.WithLabelValues(labels.Reason, labels.Outcome).Inc()
	m.keySetFetchTime.Observe(duration)
}
