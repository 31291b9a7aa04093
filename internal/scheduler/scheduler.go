// Package scheduler implements C12: the two background loops spec.md §4.10
// requires — webhook retry redrive and webhook event TTL cleanup — adapted
// from the teacher's payment_request_expiry.go Start/Stop/ticker/select
// shape, generalized from one job to a set of named loops and from
// stdlib log to the structured zap logger used everywhere else.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	domainrepos "paygate.backend/internal/domain/repositories"
	"paygate.backend/internal/webhook"
)

// Defaults per spec.md §4.10: redrive every 30s, purge events past 90 days
// of age once a day.
const (
	DefaultRetryInterval   = 30 * time.Second
	DefaultCleanupInterval = 24 * time.Hour
	DefaultRetentionPeriod = 90 * 24 * time.Hour
	redriveBatchSize       = 100
)

// Scheduler owns the webhook redrive and cleanup loops plus the rate
// limiter sweep, each running on its own ticker.
type Scheduler struct {
	webhooks        domainrepos.WebhookRepository
	processor       *webhook.Processor
	limiter         *webhook.RateLimiter
	retryInterval   time.Duration
	cleanupInterval time.Duration
	retentionPeriod time.Duration
	logger          *zap.Logger
	stop            chan struct{}
}

// New builds a Scheduler with spec.md's default intervals. Pass a nil
// limiter to skip the sweep loop (e.g. when rate limiting is disabled).
func New(webhooks domainrepos.WebhookRepository, processor *webhook.Processor, limiter *webhook.RateLimiter, logger *zap.Logger) *Scheduler {
	return NewWithIntervals(webhooks, processor, limiter, logger, DefaultRetryInterval, DefaultCleanupInterval, DefaultRetentionPeriod)
}

// NewWithIntervals builds a Scheduler with caller-supplied intervals, for
// wiring config.SchedulerConfig in production instead of the spec defaults.
func NewWithIntervals(
	webhooks domainrepos.WebhookRepository,
	processor *webhook.Processor,
	limiter *webhook.RateLimiter,
	logger *zap.Logger,
	retryInterval, cleanupInterval, retentionPeriod time.Duration,
) *Scheduler {
	return &Scheduler{
		webhooks:        webhooks,
		processor:       processor,
		limiter:         limiter,
		retryInterval:   retryInterval,
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		logger:          logger,
		stop:            make(chan struct{}),
	}
}

// Start runs the redrive and cleanup loops, plus the limiter sweep loop when a
// limiter is set, until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runRetryLoop(ctx)
	go s.runCleanupLoop(ctx)
	if s.limiter != nil {
		go s.runSweepLoop(ctx)
	}
}

// Stop signals all loops to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) runRetryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.redriveDue(ctx)
		}
	}
}

func (s *Scheduler) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.purgeOld(ctx)
		}
	}
}

func (s *Scheduler) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.limiter.Sweep()
		}
	}
}

func (s *Scheduler) redriveDue(ctx context.Context) {
	due, err := s.webhooks.ListDueForRetry(ctx, time.Now(), redriveBatchSize)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("scheduler: failed to list webhooks due for retry", zap.Error(err))
		}
		return
	}
	for _, event := range due {
		if err := s.processor.Process(ctx, event); err != nil && s.logger != nil {
			s.logger.Warn("scheduler: webhook redrive attempt failed",
				zap.String("eventId", event.ID.String()), zap.Int("attempts", event.ProcessingAttempts), zap.Error(err))
		}
	}
}

func (s *Scheduler) purgeOld(ctx context.Context) {
	cutoff := time.Now().Add(-s.retentionPeriod)
	deleted, err := s.webhooks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("scheduler: failed to purge old webhook events", zap.Error(err))
		}
		return
	}
	if deleted > 0 && s.logger != nil {
		s.logger.Info("scheduler: purged old webhook events", zap.Int64("count", deleted))
	}
}
