// Package webhook implements C9: signature-verified webhook ingestion,
// dedup, rate limiting and provider-status application.
package webhook

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultRatePerSecond and defaultBurst implement spec.md §4.9 step 4: 100
// req/min (≈1.67/s) per (provider, source IP), matching the teacher's
// RateLimitConfig default when a caller builds a limiter with NewRateLimiter.
const (
	defaultRatePerSecond = 100.0 / 60
	defaultBurst         = 100
)

// limiterEntry pairs a token bucket with the time it was last touched, so
// the sweep can evict buckets nobody has used in a while.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a mutex-guarded map of per-(provider, source IP) token buckets,
// grounded on sambitmohanty1-payment-watchdog/worker's single global
// rate.Limiter, generalized here to one bucket per key since a single
// shared limiter can't express a per-IP quota. A failure to allocate or
// consult a bucket (none exist in this in-process implementation, but a
// future Redis-backed one could fail on a network error) MUST fail open
// per spec.md — callers treat a limiter error as "allowed".
type RateLimiter struct {
	mu            sync.Mutex
	buckets       map[string]*limiterEntry
	ratePerSecond float64
	burst         int
	idle          time.Duration
}

// NewRateLimiter builds a limiter using the spec default rate and burst,
// evicting buckets idle for longer than idle. idle <= 0 defaults to ten
// minutes. Use NewRateLimiterWithRate to override the rate from
// config.RateLimitConfig.
func NewRateLimiter(idle time.Duration) *RateLimiter {
	return NewRateLimiterWithRate(defaultRatePerSecond, defaultBurst, idle)
}

// NewRateLimiterWithRate builds a limiter with a caller-supplied requests
// per second and burst, for wiring config.RateLimitConfig.
func NewRateLimiterWithRate(ratePerSecond float64, burst int, idle time.Duration) *RateLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		buckets:       make(map[string]*limiterEntry),
		ratePerSecond: ratePerSecond,
		burst:         burst,
		idle:          idle,
	}
}

// Allow reports whether a request for (provider, sourceIP) is within the
// rate limit.
func (l *RateLimiter) Allow(provider, sourceIP string) bool {
	key := provider + ":" + sourceIP
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.buckets[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)}
		l.buckets[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// Sweep drops buckets untouched for longer than the configured idle
// duration. The C12 scheduler calls this on a timer so the map doesn't
// grow without bound across many distinct source IPs.
func (l *RateLimiter) Sweep() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}
