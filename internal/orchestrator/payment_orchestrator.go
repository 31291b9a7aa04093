// Package orchestrator implements C7 (payment) and C8 (refund): the
// request-driven state machines that tie routing, the provider adapter
// factory, the resilience pipeline, persistence and the audit/event trail
// together. Built the way the teacher's usecases package orchestrated
// repos + clientFactory + unit of work, generalized from a blockchain
// bridge payment to a provider-authorize payment.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/audit"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	domainrepos "paygate.backend/internal/domain/repositories"
	"paygate.backend/internal/events"
	"paygate.backend/internal/idempotency"
	"paygate.backend/internal/metrics"
	"paygate.backend/internal/resilience"
	"paygate.backend/internal/routing"
)

// operationPayment scopes idempotency-store keys for the payment flow,
// keeping them distinct from refund keys sharing the same string space.
const operationPayment = "payment"

// lockWaitRetries/lockWaitInterval bound how long a caller blocks behind a
// concurrent request with the same idempotency key before giving up with
// ConcurrentRequest, per spec.md §4.7 step 2.
const (
	lockWaitRetries  = 5
	lockWaitInterval = 200 * time.Millisecond
)

// PaymentOrchestrator implements spec.md §4.7.
type PaymentOrchestrator struct {
	payments   domainrepos.PaymentRepository
	uow        domainrepos.UnitOfWork
	router     *routing.Router
	adapters   *adapter.Factory
	pipeline   *resilience.Pipeline
	idem       idempotency.Store
	auditLog   *audit.Log
	publisher  *events.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewPaymentOrchestrator wires together the dependencies required to
// process payments. m may be nil in tests that do not care about metrics.
func NewPaymentOrchestrator(
	payments domainrepos.PaymentRepository,
	uow domainrepos.UnitOfWork,
	router *routing.Router,
	adapters *adapter.Factory,
	pipeline *resilience.Pipeline,
	idem idempotency.Store,
	auditLog *audit.Log,
	publisher *events.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		payments:  payments,
		uow:       uow,
		router:    router,
		adapters:  adapters,
		pipeline:  pipeline,
		idem:      idem,
		auditLog:  auditLog,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ProcessPayment runs the full algorithm of spec.md §4.7 steps 1-5.
func (o *PaymentOrchestrator) ProcessPayment(ctx context.Context, req entities.CreatePaymentRequest) (*entities.PaymentTransaction, error) {
	// Step 1: fast path — already processed under this idempotency key.
	if existing, err := o.payments.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		o.recordIdempotencyHit()
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}
	o.recordIdempotencyMiss()

	// Step 2: acquire the distributed lock, bounded-wait re-check on miss.
	acquired, err := o.idem.AcquireLock(ctx, operationPayment, req.IdempotencyKey)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if !acquired {
		return o.waitForConcurrentResult(ctx, req.IdempotencyKey)
	}
	defer o.idem.ReleaseLock(ctx, operationPayment, req.IdempotencyKey)

	payment, err := o.runPayment(ctx, req)
	if err != nil {
		return nil, err
	}

	// Step 4: cache the serialized response for replay within the TTL.
	if serialized, err := json.Marshal(payment); err == nil {
		if err := o.idem.StoreResult(ctx, operationPayment, req.IdempotencyKey, serialized); err != nil && o.logger != nil {
			o.logger.Warn("idempotency: failed to store payment result", zap.Error(err), zap.String("idempotencyKey", req.IdempotencyKey))
		}
	}

	return payment, nil
}

// runPayment executes steps 3a-3j against a fresh transaction row.
func (o *PaymentOrchestrator) runPayment(ctx context.Context, req entities.CreatePaymentRequest) (*entities.PaymentTransaction, error) {
	var preferred *string
	if req.PreferredProvider != "" {
		preferred = &req.PreferredProvider
	}

	provider, err := o.router.SelectProvider(ctx, req.Currency, preferred)
	if err != nil {
		return nil, err
	}

	payment := &entities.PaymentTransaction{
		ID:             uuid.New(),
		IdempotencyKey: req.IdempotencyKey,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         entities.PaymentStatusPending,
		CustomerID:     req.CustomerID,
		OrderID:        req.OrderID,
		Description:    req.Description,
		ReturnURL:      req.ReturnURL,
		CancelURL:      req.CancelURL,
		Metadata:       req.Metadata,
		ProviderID:     provider.ID,
		ProviderName:   provider.Name,
		CorrelationID:  req.CorrelationID,
	}
	if err := payment.Validate(); err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	// The row and its creation audit entry are written atomically: a
	// payment with no PaymentCreated log would confuse a reconciler.
	if err := o.uow.Do(ctx, func(ctx context.Context) error {
		if err := o.payments.Create(ctx, payment); err != nil {
			return err
		}
		return o.auditLog.Record(ctx, payment.ID, "", string(entities.PaymentStatusPending), entities.EventPaymentCreated, "payment created", "", "", "")
	}); err != nil {
		return nil, err
	}
	o.publisher.Publish(ctx, events.DomainEvent{Type: events.PaymentCreated, CorrelationID: payment.CorrelationID, PaymentID: payment.ID.String(), OccurredAt: timeNow()})

	if err := o.transition(ctx, payment, entities.PaymentStatusProcessing, entities.EventStatusUpdated, "authorizing with provider", ""); err != nil {
		return nil, err
	}

	providerAdapter, err := o.adapters.For(provider)
	if err != nil {
		return o.fail(ctx, payment, err.Error(), "")
	}

	authReq := adapter.AuthorizeRequest{
		PaymentID:   payment.ID.String(),
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: payment.Description,
		ReturnURL:   payment.ReturnURL,
		CancelURL:   payment.CancelURL,
		Metadata:    payment.Metadata,
	}

	var result *adapter.AuthorizeResult
	region := provider.DefaultRegion().Region
	err = o.pipeline.Do(ctx, provider.Name, region, func(ctx context.Context) error {
		res, err := providerAdapter.Authorize(ctx, authReq)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return o.fail(ctx, payment, err.Error(), providerErrorCode(err))
	}

	payment.ProviderTransactionID = null.StringFrom(result.ProviderTransactionID)
	if result.PaymentURL != "" {
		payment.PaymentURL = null.StringFrom(result.PaymentURL)
	}

	if result.Status == entities.PaymentStatusCompleted {
		return o.complete(ctx, payment)
	}

	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, err
	}
	o.logTransition(ctx, payment.ID, string(entities.PaymentStatusProcessing), string(entities.PaymentStatusProcessing), entities.EventStatusUpdated, "provider acknowledged, awaiting confirmation")
	return payment, nil
}

// complete transitions payment to COMPLETED, stamping completed_at and
// publishing PaymentCompletedEvent.
func (o *PaymentOrchestrator) complete(ctx context.Context, payment *entities.PaymentTransaction) (*entities.PaymentTransaction, error) {
	now := timeNow()
	payment.Status = entities.PaymentStatusCompleted
	payment.CompletedAt = &now
	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, err
	}
	o.logTransition(ctx, payment.ID, string(entities.PaymentStatusProcessing), string(entities.PaymentStatusCompleted), entities.EventStatusUpdated, "provider confirmed completion")
	o.publisher.Publish(ctx, events.DomainEvent{Type: events.PaymentCompleted, CorrelationID: payment.CorrelationID, PaymentID: payment.ID.String(), OccurredAt: now})
	return payment, nil
}

// fail transitions payment to FAILED and publishes PaymentFailedEvent.
func (o *PaymentOrchestrator) fail(ctx context.Context, payment *entities.PaymentTransaction, message, providerErrorCode string) (*entities.PaymentTransaction, error) {
	now := timeNow()
	previous := payment.Status
	payment.Status = entities.PaymentStatusFailed
	payment.CompletedAt = &now
	payment.ErrorMessage = null.StringFrom(message)
	if providerErrorCode != "" {
		payment.ProviderErrorCode = null.StringFrom(providerErrorCode)
	}
	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, err
	}
	o.logTransition(ctx, payment.ID, string(previous), string(entities.PaymentStatusFailed), entities.EventStatusUpdated, message)
	o.publisher.Publish(ctx, events.DomainEvent{Type: events.PaymentFailed, CorrelationID: payment.CorrelationID, PaymentID: payment.ID.String(), OccurredAt: now})
	return payment, nil
}

// transition applies to -> payment.Status, validating against the state
// machine, persisting, and audit-logging.
func (o *PaymentOrchestrator) transition(ctx context.Context, payment *entities.PaymentTransaction, to entities.PaymentStatus, eventType, message, providerResponse string) error {
	if !entities.CanTransition(payment.Status, to) {
		return domainerrors.InvalidState(fmt.Sprintf("cannot transition payment from %s to %s", payment.Status, to))
	}
	previous := payment.Status
	payment.Status = to
	if err := o.payments.Update(ctx, payment); err != nil {
		return err
	}
	o.logTransition(ctx, payment.ID, string(previous), string(to), eventType, message)
	return nil
}

func (o *PaymentOrchestrator) logTransition(ctx context.Context, paymentID uuid.UUID, previous, current, eventType, message string) {
	if err := o.auditLog.Record(ctx, paymentID, previous, current, eventType, message, "", "", ""); err != nil && o.logger != nil {
		o.logger.Warn("audit: failed to record transition", zap.Error(err), zap.String("paymentId", paymentID.String()))
	}
}

// waitForConcurrentResult implements §4.7 step 2's bounded-wait re-check:
// poll for the now-persisted row a handful of times before surfacing
// ConcurrentRequest.
func (o *PaymentOrchestrator) waitForConcurrentResult(ctx context.Context, idempotencyKey string) (*entities.PaymentTransaction, error) {
	for i := 0; i < lockWaitRetries; i++ {
		if existing, err := o.payments.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
			return existing, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockWaitInterval):
		}
	}
	return nil, domainerrors.ConcurrentRequest()
}

func isNotFound(err error) bool {
	return errors.Is(err, domainerrors.ErrNotFound)
}

func (o *PaymentOrchestrator) recordIdempotencyHit() {
	if o.metrics != nil {
		o.metrics.IdempotencyHits.Inc()
	}
}

func (o *PaymentOrchestrator) recordIdempotencyMiss() {
	if o.metrics != nil {
		o.metrics.IdempotencyMisses.Inc()
	}
}

func providerErrorCode(err error) string {
	var appErr *domainerrors.AppError
	if domainerrors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return ""
}

// timeNow is a seam so tests can freeze the clock; production always uses
// wall time.
var timeNow = func() time.Time { return time.Now() }
