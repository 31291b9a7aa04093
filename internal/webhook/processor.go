package webhook

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/audit"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	domainrepos "paygate.backend/internal/domain/repositories"
	domainevents "paygate.backend/internal/events"
	"paygate.backend/internal/metrics"
)

// backoffBase/backoffCap implement spec.md §4.9's retry schedule:
// exponential with jitter, base 30s, cap 1h.
const (
	backoffBase = 30 * time.Second
	backoffCap  = time.Hour
)

// Processor implements spec.md §4.9's process_webhook algorithm: parse,
// locate the target transaction, apply the provider-reported status
// through the payment/refund state machine, audit-log, publish, and
// bookkeep retries.
type Processor struct {
	webhooks  domainrepos.WebhookRepository
	providers domainrepos.ProviderRepository
	payments  domainrepos.PaymentRepository
	refunds   domainrepos.RefundRepository
	adapters  *adapter.Factory
	auditLog  *audit.Log
	publisher *domainevents.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewProcessor wires a Processor.
func NewProcessor(
	webhooks domainrepos.WebhookRepository,
	providers domainrepos.ProviderRepository,
	payments domainrepos.PaymentRepository,
	refunds domainrepos.RefundRepository,
	adapters *adapter.Factory,
	auditLog *audit.Log,
	publisher *domainevents.Publisher,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		webhooks:  webhooks,
		providers: providers,
		payments:  payments,
		refunds:   refunds,
		adapters:  adapters,
		auditLog:  auditLog,
		publisher: publisher,
		logger:    logger,
	}
}

// WithMetrics attaches m so Process records outcome counters. Separate from
// NewProcessor to avoid touching the many existing call sites that do not
// care about metrics.
func (p *Processor) WithMetrics(m *metrics.Metrics) *Processor {
	p.metrics = m
	return p
}

func (p *Processor) recordOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()
	}
}

// Process runs spec.md §4.9's process_webhook algorithm against a
// previously-persisted, non-duplicate event.
func (p *Processor) Process(ctx context.Context, event *entities.WebhookEvent) error {
	event.ProcessingStatus = entities.WebhookStatusProcessing
	if err := p.webhooks.Update(ctx, event); err != nil {
		return err
	}

	err := p.apply(ctx, event)
	if err == nil {
		now := timeNow()
		event.ProcessingStatus = entities.WebhookStatusCompleted
		event.ProcessedAt = &now
		event.NextRetryAt = nil
		p.recordOutcome("completed")
		return p.webhooks.Update(ctx, event)
	}

	event.ProcessingAttempts++
	event.FailureReason = null.StringFrom(err.Error())
	now := timeNow()
	event.FailedAt = &now
	if event.ProcessingAttempts >= entities.MaxWebhookAttempts {
		event.ProcessingStatus = entities.WebhookStatusFailed
		event.NextRetryAt = nil
		p.recordOutcome("failed")
		if p.logger != nil {
			p.logger.Error("webhook processing gave up after max attempts",
				zap.String("eventId", event.ID.String()), zap.Int("attempts", event.ProcessingAttempts), zap.Error(err))
		}
	} else {
		next := now.Add(backoffDelay(event.ProcessingAttempts))
		event.ProcessingStatus = entities.WebhookStatusFailed
		event.NextRetryAt = &next
		p.recordOutcome("retry_scheduled")
	}
	if updErr := p.webhooks.Update(ctx, event); updErr != nil {
		return updErr
	}
	return err
}

// apply parses the payload via the provider adapter and transitions the
// target payment or refund to the reported status.
func (p *Processor) apply(ctx context.Context, event *entities.WebhookEvent) error {
	provider, err := p.providers.GetByID(ctx, event.ProviderID)
	if err != nil {
		return err
	}

	providerAdapter, err := p.adapters.For(provider)
	if err != nil {
		return err
	}

	parsed, err := providerAdapter.VerifyWebhook(nil, []byte(event.RawPayload), "")
	if err != nil {
		return err
	}

	if parsed.IsRefundEvent {
		return p.applyRefund(ctx, event, parsed)
	}
	return p.applyPayment(ctx, event, parsed)
}

func (p *Processor) applyPayment(ctx context.Context, event *entities.WebhookEvent, parsed *adapter.WebhookEvent) error {
	payment, err := p.payments.GetByProviderTransactionID(ctx, parsed.ProviderTransactionID)
	if err != nil {
		return err
	}
	id := payment.ID
	event.PaymentTransactionID = &id

	if !entities.CanTransition(payment.Status, parsed.Status) {
		// Already in the reported state (replayed delivery, or the
		// authorize call already completed it) — nothing to do.
		if payment.Status == parsed.Status {
			return nil
		}
		return domainerrors.InvalidState("webhook reports a status unreachable from the payment's current state")
	}

	previous := payment.Status
	payment.Status = parsed.Status
	if parsed.Status == entities.PaymentStatusCompleted || parsed.Status == entities.PaymentStatusFailed {
		now := timeNow()
		payment.CompletedAt = &now
	}
	if err := p.payments.Update(ctx, payment); err != nil {
		return err
	}

	if err := p.auditLog.Record(ctx, payment.ID, string(previous), string(payment.Status), entities.EventWebhookReceived, "status applied from webhook", event.RawPayload, "", ""); err != nil && p.logger != nil {
		p.logger.Warn("audit: failed to record webhook-applied transition", zap.Error(err))
	}

	eventType := domainevents.PaymentCompleted
	if parsed.Status == entities.PaymentStatusFailed {
		eventType = domainevents.PaymentFailed
	}
	p.publisher.Publish(ctx, domainevents.DomainEvent{Type: eventType, PaymentID: payment.ID.String(), OccurredAt: timeNow()})
	return nil
}

func (p *Processor) applyRefund(ctx context.Context, event *entities.WebhookEvent, parsed *adapter.WebhookEvent) error {
	refund, err := p.refunds.GetByProviderRefundID(ctx, parsed.ProviderRefundID)
	if err != nil {
		return err
	}
	id := refund.ID
	event.RefundTransactionID = &id

	if refund.Status == parsed.RefundStatus {
		return nil
	}

	previous := refund.Status
	refund.Status = parsed.RefundStatus
	if parsed.RefundStatus == entities.RefundStatusCompleted {
		now := timeNow()
		refund.CompletedAt = &now
	}
	if err := p.refunds.Update(ctx, refund); err != nil {
		return err
	}

	if err := p.auditLog.Record(ctx, refund.PaymentTransactionID, string(previous), string(refund.Status), entities.EventWebhookReceived, "refund status applied from webhook", event.RawPayload, "", ""); err != nil && p.logger != nil {
		p.logger.Warn("audit: failed to record webhook-applied refund transition", zap.Error(err))
	}

	eventType := domainevents.RefundCompleted
	if parsed.RefundStatus == entities.RefundStatusFailed {
		eventType = domainevents.RefundFailed
	}
	p.publisher.Publish(ctx, domainevents.DomainEvent{Type: eventType, PaymentID: refund.PaymentTransactionID.String(), RefundID: refund.ID.String(), OccurredAt: timeNow()})
	return nil
}

// backoffDelay computes the exponential-with-jitter retry delay for the
// given attempt count, grounded on the same cenkalti/backoff library the
// resilience pipeline already uses for provider-call retries.
func backoffDelay(attempts int) time.Duration {
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(backoffBase),
		backoff.WithMaxInterval(backoffCap),
		backoff.WithMaxElapsedTime(0),
	)
	eb.Reset()
	delay := backoffBase
	for i := 0; i < attempts; i++ {
		delay = eb.NextBackOff()
		if delay > backoffCap {
			delay = backoffCap
			break
		}
	}
	return delay
}

// timeNow is a seam so tests can freeze the clock.
var timeNow = func() time.Time { return time.Now() }
