package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
)

const operationRefund = "refund"

// RefundOrchestrator implements spec.md §4.8.
type RefundOrchestrator struct {
	refunds   domainrepos.RefundRepository
	payments  domainrepos.PaymentRepository
	providers domainrepos.ProviderRepository
	uow       domainrepos.UnitOfWork
	adapters  *adapter.Factory
	pipeline  *resilience.Pipeline
	idem      idempotency.Store
	auditLog  *audit.Log
	publisher *events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewRefundOrchestrator wires together the dependencies required to
// process refunds. m may be nil in tests that do not care about metrics.
func NewRefundOrchestrator(
	refunds domainrepos.RefundRepository,
	payments domainrepos.PaymentRepository,
	providers domainrepos.ProviderRepository,
	uow domainrepos.UnitOfWork,
	adapters *adapter.Factory,
	pipeline *resilience.Pipeline,
	idem idempotency.Store,
	auditLog *audit.Log,
	publisher *events.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RefundOrchestrator {
	return &RefundOrchestrator{
		refunds:   refunds,
		payments:  payments,
		providers: providers,
		uow:       uow,
		adapters:  adapters,
		pipeline:  pipeline,
		idem:      idem,
		auditLog:  auditLog,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ProcessRefund implements spec.md §4.8 steps 1-7.
func (o *RefundOrchestrator) ProcessRefund(ctx context.Context, req entities.CreateRefundRequest) (*entities.RefundTransaction, error) {
	if existing, err := o.refunds.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		if o.metrics != nil {
			o.metrics.IdempotencyHits.Inc()
		}
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.IdempotencyMisses.Inc()
	}

	acquired, err := o.idem.AcquireLock(ctx, operationRefund, req.IdempotencyKey)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if !acquired {
		return o.waitForConcurrentRefund(ctx, req.IdempotencyKey)
	}
	defer o.idem.ReleaseLock(ctx, operationRefund, req.IdempotencyKey)

	refund, err := o.runRefund(ctx, req)
	if err != nil {
		return nil, err
	}

	if serialized, err := json.Marshal(refund); err == nil {
		if err := o.idem.StoreResult(ctx, operationRefund, req.IdempotencyKey, serialized); err != nil && o.logger != nil {
			o.logger.Warn("idempotency: failed to store refund result", zap.Error(err), zap.String("idempotencyKey", req.IdempotencyKey))
		}
	}

	return refund, nil
}

func (o *RefundOrchestrator) runRefund(ctx context.Context, req entities.CreateRefundRequest) (*entities.RefundTransaction, error) {
	payment, err := o.payments.GetByID(ctx, req.PaymentTransactionID)
	if err != nil {
		if isNotFound(err) {
			return nil, domainerrors.NotFound("payment transaction not found")
		}
		return nil, err
	}

	if payment.Status != entities.PaymentStatusCompleted && payment.Status != entities.PaymentStatusPartiallyRefunded {
		return nil, domainerrors.InvalidState(fmt.Sprintf("payment in status %s cannot be refunded", payment.Status))
	}

	alreadyRefunded, err := o.sumActiveRefunds(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	remaining := payment.Amount.Sub(alreadyRefunded)
	if req.Amount.GreaterThan(remaining) {
		return nil, domainerrors.ExcessiveAmount(fmt.Sprintf("refund amount %s exceeds remaining refundable balance %s", req.Amount, remaining))
	}
	if req.RefundType == entities.RefundTypeFull && !req.Amount.Equal(remaining) {
		return nil, domainerrors.Validation("full refund must equal the remaining refundable balance")
	}

	provider, err := o.providers.GetByID(ctx, payment.ProviderID)
	if err != nil {
		return nil, err
	}

	refund := &entities.RefundTransaction{
		ID:                   uuid.New(),
		IdempotencyKey:       req.IdempotencyKey,
		PaymentTransactionID: payment.ID,
		ProviderID:           payment.ProviderID,
		Amount:               req.Amount,
		Currency:             payment.Currency,
		Status:               entities.RefundStatusPending,
		RefundType:           req.RefundType,
		CorrelationID:        req.CorrelationID,
	}
	if req.Reason != "" {
		refund.Reason = null.StringFrom(req.Reason)
	}

	if err := o.uow.Do(ctx, func(ctx context.Context) error {
		if err := o.refunds.Create(ctx, refund); err != nil {
			return err
		}
		return o.auditLog.Record(ctx, payment.ID, "", string(entities.RefundStatusPending), entities.EventRefundCreated, "refund created", "", "", "")
	}); err != nil {
		return nil, err
	}
	o.publisher.Publish(ctx, events.DomainEvent{Type: events.RefundCreated, CorrelationID: refund.CorrelationID, PaymentID: payment.ID.String(), RefundID: refund.ID.String(), OccurredAt: timeNow()})

	refund.Status = entities.RefundStatusProcessing
	if err := o.refunds.Update(ctx, refund); err != nil {
		return nil, err
	}

	providerAdapter, err := o.adapters.For(provider)
	if err != nil {
		return o.failRefund(ctx, payment, refund, err.Error())
	}

	refundReq := adapter.RefundRequest{
		ProviderTransactionID: payment.ProviderTransactionID.String,
		Amount:                req.Amount,
		Currency:              payment.Currency,
		Reason:                req.Reason,
	}

	var result *adapter.RefundResult
	region := provider.DefaultRegion().Region
	err = o.pipeline.Do(ctx, provider.Name, region, func(ctx context.Context) error {
		res, err := providerAdapter.Refund(ctx, refundReq)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return o.failRefund(ctx, payment, refund, err.Error())
	}

	refund.ProviderRefundID = null.StringFrom(result.ProviderRefundID)
	return o.completeRefund(ctx, payment, refund)
}

// completeRefund marks refund COMPLETED and updates the parent payment to
// REFUNDED or PARTIALLY_REFUNDED depending on cumulative refunded amount.
func (o *RefundOrchestrator) completeRefund(ctx context.Context, payment *entities.PaymentTransaction, refund *entities.RefundTransaction) (*entities.RefundTransaction, error) {
	now := timeNow()
	refund.Status = entities.RefundStatusCompleted
	refund.CompletedAt = &now
	if err := o.refunds.Update(ctx, refund); err != nil {
		return nil, err
	}
	o.logTransition(ctx, payment.ID, string(entities.RefundStatusProcessing), string(entities.RefundStatusCompleted), entities.EventStatusUpdated, "refund completed by provider")

	totalRefunded, err := o.sumActiveRefunds(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	previous := payment.Status
	if totalRefunded.Equal(payment.Amount) {
		payment.Status = entities.PaymentStatusRefunded
	} else {
		payment.Status = entities.PaymentStatusPartiallyRefunded
	}
	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, err
	}
	o.logTransition(ctx, payment.ID, string(previous), string(payment.Status), entities.EventStatusUpdated, "payment refund status updated")

	o.publisher.Publish(ctx, events.DomainEvent{Type: events.RefundCompleted, CorrelationID: refund.CorrelationID, PaymentID: payment.ID.String(), RefundID: refund.ID.String(), OccurredAt: now})
	return refund, nil
}

func (o *RefundOrchestrator) failRefund(ctx context.Context, payment *entities.PaymentTransaction, refund *entities.RefundTransaction, message string) (*entities.RefundTransaction, error) {
	refund.Status = entities.RefundStatusFailed
	if err := o.refunds.Update(ctx, refund); err != nil {
		return nil, err
	}
	o.logTransition(ctx, payment.ID, string(entities.RefundStatusProcessing), string(entities.RefundStatusFailed), entities.EventStatusUpdated, message)
	o.publisher.Publish(ctx, events.DomainEvent{Type: events.RefundFailed, CorrelationID: refund.CorrelationID, PaymentID: payment.ID.String(), RefundID: refund.ID.String(), OccurredAt: timeNow()})
	return refund, nil
}

func (o *RefundOrchestrator) sumActiveRefunds(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	raw, err := o.payments.SumActiveRefunds(ctx, paymentID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, domainerrors.InternalError(err)
	}
	return sum, nil
}

func (o *RefundOrchestrator) logTransition(ctx context.Context, paymentID uuid.UUID, previous, current, eventType, message string) {
	if err := o.auditLog.Record(ctx, paymentID, previous, current, eventType, message, "", "", ""); err != nil && o.logger != nil {
		o.logger.Warn("audit: failed to record refund transition", zap.Error(err), zap.String("paymentId", paymentID.String()))
	}
}

func (o *RefundOrchestrator) waitForConcurrentRefund(ctx context.Context, idempotencyKey string) (*entities.RefundTransaction, error) {
	for i := 0; i < lockWaitRetries; i++ {
		if existing, err := o.refunds.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
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
