package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

// RefundRepository implements refund data operations (C8) using GORM.
type RefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a new refund repository.
func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create inserts a new refund with RowVersion seeded to 1.
func (r *RefundRepository) Create(ctx context.Context, refund *entities.RefundTransaction) error {
	refund.RowVersion = 1
	err := GetDB(ctx, r.db).Create(refund).Error
	if err != nil && isUniqueViolation(err) {
		return domainerrors.ErrAlreadyExists
	}
	return err
}

// GetByID fetches one refund by primary key.
func (r *RefundRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.RefundTransaction, error) {
	var refund entities.RefundTransaction
	err := GetDB(ctx, r.db).First(&refund, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetByIdempotencyKey fetches a refund previously created under key.
func (r *RefundRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.RefundTransaction, error) {
	var refund entities.RefundTransaction
	err := GetDB(ctx, r.db).First(&refund, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetByProviderRefundID fetches the refund bearing providerRefundID, used by
// the webhook processor to resolve the target of a refund-status delivery.
func (r *RefundRepository) GetByProviderRefundID(ctx context.Context, providerRefundID string) (*entities.RefundTransaction, error) {
	var refund entities.RefundTransaction
	err := GetDB(ctx, r.db).First(&refund, "provider_refund_id = ?", providerRefundID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// Update performs an optimistic-concurrency update gated on RowVersion, the
// same scheme as PaymentRepository.Update.
func (r *RefundRepository) Update(ctx context.Context, refund *entities.RefundTransaction) error {
	expected := refund.RowVersion
	refund.RowVersion = expected + 1

	result := GetDB(ctx, r.db).
		Model(&entities.RefundTransaction{}).
		Where("id = ? AND row_version = ?", refund.ID, expected).
		Updates(map[string]interface{}{
			"status":             refund.Status,
			"provider_refund_id": refund.ProviderRefundID,
			"completed_at":       refund.CompletedAt,
			"row_version":        refund.RowVersion,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConcurrentModify
	}
	return nil
}

// ListActiveByPayment returns refunds in a non-terminal-failed status
// against paymentID, newest first.
func (r *RefundRepository) ListActiveByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.RefundTransaction, error) {
	var refunds []*entities.RefundTransaction
	err := GetDB(ctx, r.db).
		Where("payment_transaction_id = ? AND status IN ?", paymentID, entities.ActiveRefundStatuses).
		Order("created_at desc").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}
