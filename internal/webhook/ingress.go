package webhook

import (
	"context"
	"errors"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	domainrepos "paygate.backend/internal/domain/repositories"
	"paygate.backend/internal/metrics"
)

// Ingress implements spec.md §4.9's ingest algorithm: verify, dedup,
// persist, accept. It never runs provider-status application itself — that
// is Processor's job, invoked asynchronously by the caller (the HTTP
// handler enqueues; a background worker or the handler's own goroutine
// calls Process).
type Ingress struct {
	providers domainrepos.ProviderRepository
	events    domainrepos.WebhookRepository
	adapters  *adapter.Factory
	limiter   *RateLimiter
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewIngress wires an Ingress. limiter may be nil to disable rate limiting
// entirely (tests, or a deployment that rate-limits at the edge instead).
func NewIngress(providers domainrepos.ProviderRepository, events domainrepos.WebhookRepository, adapters *adapter.Factory, limiter *RateLimiter, logger *zap.Logger) *Ingress {
	return &Ingress{providers: providers, events: events, adapters: adapters, limiter: limiter, logger: logger}
}

// WithMetrics attaches m so Ingest records duplicate/invalid-signature
// outcome counters, mirroring Processor.WithMetrics.
func (i *Ingress) WithMetrics(m *metrics.Metrics) *Ingress {
	i.metrics = m
	return i
}

func (i *Ingress) recordOutcome(outcome string) {
	if i.metrics != nil {
		i.metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()
	}
}

// Ingest runs spec.md §4.9 ingest steps 1-4 and returns the persisted event
// plus whether it is a duplicate of a previously-seen delivery.
func (i *Ingress) Ingest(ctx context.Context, providerName string, rawBody []byte, headers map[string]string, sourceIP string) (*entities.WebhookEvent, bool, error) {
	if i.limiter != nil {
		// A limiter-backend error would mean "can't tell", which per
		// spec.md must fail open rather than drop the webhook; Allow
		// here never errors (in-process buckets), but a future
		// network-backed limiter must preserve that contract at the
		// call site, not inside Allow.
		if !i.limiter.Allow(providerName, sourceIP) {
			return nil, false, domainerrors.RateLimited()
		}
	}

	provider, err := i.providers.GetByName(ctx, providerName)
	if err != nil {
		if isNotFound(err) {
			return nil, false, domainerrors.NotFound("unknown provider")
		}
		return nil, false, err
	}

	providerAdapter, err := i.adapters.For(provider)
	if err != nil {
		return nil, false, err
	}

	verified, verr := providerAdapter.VerifyWebhook(headers, rawBody, sourceIP)
	if verr != nil {
		event := &entities.WebhookEvent{
			ProviderID:         provider.ID,
			ProviderEventID:    unverifiedEventID(headers),
			RawPayload:         string(rawBody),
			SignatureValidated: false,
			ProcessingStatus:   entities.WebhookStatusFailed,
		}
		setOptionalStrings(event, headers, sourceIP)
		// Persisted for forensics even though the caller only ever sees a
		// generic 400; the reason is never disclosed in the response.
		_ = i.events.Create(ctx, event)
		i.recordOutcome("signature_invalid")
		if i.logger != nil {
			i.logger.Warn("webhook signature verification failed", zap.String("provider", providerName), zap.Error(verr))
		}
		return nil, false, domainerrors.WebhookSignatureInvalid()
	}

	if existing, err := i.events.FindByProviderEvent(ctx, provider.ID, verified.ProviderEventID); err == nil {
		dup := &entities.WebhookEvent{
			ProviderID:         provider.ID,
			ProviderEventID:    verified.ProviderEventID,
			EventType:          verified.EventType,
			RawPayload:         string(rawBody),
			SignatureValidated: true,
			ProcessingStatus:   entities.WebhookStatusDuplicate,
		}
		setOptionalStrings(dup, headers, sourceIP)
		// idx_webhook_dedup is partial (excludes DUPLICATE rows), so this
		// insert is expected to succeed alongside the first-seen row.
		if err := i.events.Create(ctx, dup); err != nil && i.logger != nil {
			i.logger.Warn("failed to persist duplicate webhook record", zap.String("provider", providerName), zap.Error(err))
		}
		i.recordOutcome("duplicate")
		if i.logger != nil {
			i.logger.Info("duplicate webhook delivery", zap.String("provider", providerName), zap.String("eventId", verified.ProviderEventID), zap.String("firstSeen", existing.ID.String()))
		}
		return dup, true, nil
	} else if !isNotFound(err) {
		return nil, false, err
	}

	event := &entities.WebhookEvent{
		ProviderID:         provider.ID,
		ProviderEventID:    verified.ProviderEventID,
		EventType:          verified.EventType,
		RawPayload:         string(rawBody),
		SignatureValidated: true,
		ProcessingStatus:   entities.WebhookStatusPending,
	}
	setOptionalStrings(event, headers, sourceIP)

	if err := i.events.Create(ctx, event); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			// Lost the race against a concurrent delivery of the same
			// event: treat it the same as the application-level dedup hit.
			if existing, gerr := i.events.FindByProviderEvent(ctx, provider.ID, verified.ProviderEventID); gerr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}

	return event, false, nil
}

func setOptionalStrings(event *entities.WebhookEvent, headers map[string]string, sourceIP string) {
	if sourceIP != "" {
		event.IPAddress = null.StringFrom(sourceIP)
	}
	if ua, ok := headers["User-Agent"]; ok && ua != "" {
		event.UserAgent = null.StringFrom(ua)
	}
}

// unverifiedEventID best-effort extracts something to log against a
// signature-rejected delivery, since verification never ran far enough to
// parse a real event id out of the body.
func unverifiedEventID(headers map[string]string) string {
	for _, key := range []string{"Stripe-Signature", "Paypal-Transmission-Id", "X-Scb-Request-Id"} {
		if v, ok := headers[key]; ok && v != "" {
			return "unverified:" + key
		}
	}
	return "unverified"
}

func isNotFound(err error) bool {
	return errors.Is(err, domainerrors.ErrNotFound)
}
