package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	ctx := context.Background()
	m.RecordValidation(ctx, ValidationLabels{Result: "authenticated"})
	m.RecordValidationLatency(ctx, 0.002, ValidationLabels{Result: "authenticated"})
	m.RecordKeySetFetch(ctx, 0.05, FetchLabels{Reason: "initial", Outcome: "success"})

	families, err := reg.Gather()
	require.NoError(t, err)

	registered := make(map[string]bool)
	for _, family := range families {
		registered[family.GetName()] = true
	}

	for _, name := range []string{
		"corbado_session_validations_total",
		"corbado_session_validation_duration_seconds",
		"corbado_jwks_fetches_total",
		"corbado_jwks_fetch_duration_seconds",
	} {
		assert.True(t, registered[name], "metric %q should be registered", name)
	}
}

func TestPrometheusMetrics_RecordValidation(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	m.RecordValidation(ctx, ValidationLabels{Result: "rejected", Kind: "token_expired"})
	m.RecordValidation(ctx, ValidationLabels{Result: "rejected", Kind: "token_expired"})
	m.RecordValidation(ctx, ValidationLabels{Result: "authenticated"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.validations.WithLabelValues("rejected", "token_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("authenticated", "")))
}

func TestPrometheusMetrics_SeparateRegistries(t *testing.T) {
	// two tenants in one process must not collide on registration
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})
}
