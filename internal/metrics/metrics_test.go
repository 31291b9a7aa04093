package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAgainstNonNilRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IdempotencyHits.Inc()
	m.IdempotencyMisses.Inc()
	m.IdempotencyMisses.Inc()
	m.WebhookOutcomes.WithLabelValues("completed").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IdempotencyHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IdempotencyMisses))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookOutcomes.WithLabelValues("completed")))
}

func TestNew_NilRegistererIsSafe(t *testing.T) {
	require.NotPanics(t, func() {
		m := New(nil)
		m.IdempotencyHits.Inc()
	})
}
