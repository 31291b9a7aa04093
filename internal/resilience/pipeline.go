// Package resilience wraps every outbound provider call in a circuit
// breaker, exponential-backoff retry, and a per-attempt timeout (C4).
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	domainerrors "paygate.backend/internal/domain/errors"
)

// minBreakerSamples is the minimum request count within the rolling
// Interval window before ReadyToTrip will ever consider opening the
// breaker, per spec's "minimum 5 samples" gate.
const minBreakerSamples = 5

// Config tunes the breaker/retry/timeout chain. See internal/config for the
// environment-driven defaults.
type Config struct {
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	CallTimeout         time.Duration
}

// Pipeline runs a provider call through a circuit breaker, retries
// transient failures with exponential backoff, and bounds every attempt
// with a context timeout. One Pipeline instance is shared across calls;
// breakers are keyed per (provider, region) so one provider's outage does
// not trip another's circuit.
type Pipeline struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	attempts  *prometheus.CounterVec
	tripCount *prometheus.CounterVec
}

// New builds a Pipeline. registerer may be nil in tests that do not care
// about metrics.
func New(cfg Config, registerer prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_provider_call_attempts_total",
			Help: "Count of provider adapter call attempts by provider, region and outcome.",
		}, []string{"provider", "region", "outcome"}),
		tripCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_provider_breaker_trips_total",
			Help: "Count of circuit breaker state transitions to open, by provider and region.",
		}, []string{"provider", "region"}),
	}
	if registerer != nil {
		registerer.MustRegister(p.attempts, p.tripCount)
	}
	return p
}

// Do runs fn under the breaker/retry/timeout chain for the given
// (provider, region) key, outermost to innermost: the whole retry budget
// runs as a single breaker sample, so an already-open breaker fails the
// call immediately instead of letting every retry attempt spend its own
// ErrOpenState sample.
func (p *Pipeline) Do(ctx context.Context, provider, region string, fn func(ctx context.Context) error) error {
	cb := p.breakerFor(provider, region)

	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(p.cfg.RetryBaseDelay),
			backoff.WithMaxInterval(p.cfg.RetryMaxDelay),
		),
		uint64(p.cfg.RetryMaxAttempts),
	)

	_, err := cb.Execute(func() (interface{}, error) {
		operation := func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
			defer cancel()

			err := fn(attemptCtx)
			if err != nil {
				p.attempts.WithLabelValues(provider, region, outcomeLabel(err)).Inc()
				if isPermanent(err) {
					return backoff.Permanent(err)
				}
				return err
			}

			p.attempts.WithLabelValues(provider, region, "success").Inc()
			return nil
		}

		return nil, backoff.Retry(operation, backoff.WithContext(policy, ctx))
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domainerrors.ProviderUnavailable(provider)
		}
		return err
	}
	return nil
}

// IsOpen reports whether the breaker for (provider, region) is currently
// open, i.e. calls would be short-circuited rather than attempted. Used by
// the routing engine to skip a provider that is mid-outage without waiting
// for a call to fail first.
func (p *Pipeline) IsOpen(provider, region string) bool {
	p.mu.Lock()
	cb, ok := p.breakers[provider+":"+region]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return cb.State() == gobreaker.StateOpen
}

func (p *Pipeline) breakerFor(provider, region string) *gobreaker.CircuitBreaker {
	key := provider + ":" + region

	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[key]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: p.cfg.BreakerMaxRequests,
		Interval:    p.cfg.BreakerInterval,
		Timeout:     p.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minBreakerSamples {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= p.cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				p.tripCount.WithLabelValues(provider, region).Inc()
			}
		},
	})

	p.breakers[key] = cb
	return cb
}

// isPermanent reports whether err is a caller error that retrying cannot
// fix (bad request, auth failure shape), as opposed to a transient network
// or provider-side failure.
func isPermanent(err error) bool {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status < 500 && appErr.Status != 429
	}
	return false
}

func outcomeLabel(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "failure"
}
