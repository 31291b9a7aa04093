// Package metrics collects the C13 counters that the resilience pipeline
// does not own itself: idempotency replay hit/miss and webhook processing
// outcomes. The resilience pipeline registers its own breaker/retry
// counters directly against the same registry (see internal/resilience).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process's non-resilience Prometheus collectors.
type Metrics struct {
	IdempotencyHits   prometheus.Counter
	IdempotencyMisses prometheus.Counter
	WebhookOutcomes   *prometheus.CounterVec
}

// New builds a Metrics and registers its collectors against registerer.
// registerer may be nil in tests that do not care about metrics.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		IdempotencyHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paygate_idempotency_hits_total",
			Help: "Count of idempotent requests replayed from a previously stored result.",
		}),
		IdempotencyMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paygate_idempotency_misses_total",
			Help: "Count of requests that found no previously stored idempotent result.",
		}),
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_webhook_processing_outcomes_total",
			Help: "Count of webhook processing attempts by outcome.",
		}, []string{"outcome"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.IdempotencyHits, m.IdempotencyMisses, m.WebhookOutcomes)
	}
	return m
}
