package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

// PaymentRepository implements payment data operations (C7) using GORM.
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment with RowVersion seeded to 1.
func (r *PaymentRepository) Create(ctx context.Context, payment *entities.PaymentTransaction) error {
	payment.RowVersion = 1
	err := GetDB(ctx, r.db).Create(payment).Error
	if err != nil && isUniqueViolation(err) {
		return domainerrors.ErrAlreadyExists
	}
	return err
}

// GetByID fetches one payment by primary key.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentTransaction, error) {
	var payment entities.PaymentTransaction
	err := GetDB(ctx, r.db).First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByIdempotencyKey fetches a payment previously created under key.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.PaymentTransaction, error) {
	var payment entities.PaymentTransaction
	err := GetDB(ctx, r.db).First(&payment, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByProviderTransactionID fetches the payment bearing providerTransactionID,
// used by the webhook processor to resolve the target of a delivery that
// carries no payment id of its own.
func (r *PaymentRepository) GetByProviderTransactionID(ctx context.Context, providerTransactionID string) (*entities.PaymentTransaction, error) {
	var payment entities.PaymentTransaction
	err := GetDB(ctx, r.db).First(&payment, "provider_transaction_id = ?", providerTransactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Update performs an optimistic-concurrency update: the WHERE clause pins
// both id and the RowVersion the caller last read, and bumps RowVersion by
// one. Zero rows affected means someone else updated the row first, which
// is surfaced as errors.ErrConcurrentModify so the orchestrator can retry
// against a fresh read instead of clobbering the other writer.
func (r *PaymentRepository) Update(ctx context.Context, payment *entities.PaymentTransaction) error {
	expected := payment.RowVersion
	payment.RowVersion = expected + 1

	result := GetDB(ctx, r.db).
		Model(&entities.PaymentTransaction{}).
		Where("id = ? AND row_version = ?", payment.ID, expected).
		Updates(map[string]interface{}{
			"status":                  payment.Status,
			"provider_id":             payment.ProviderID,
			"provider_name":           payment.ProviderName,
			"provider_transaction_id": payment.ProviderTransactionID,
			"payment_url":             payment.PaymentURL,
			"error_message":           payment.ErrorMessage,
			"provider_error_code":     payment.ProviderErrorCode,
			"retry_count":             payment.RetryCount,
			"completed_at":            payment.CompletedAt,
			"row_version":             payment.RowVersion,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConcurrentModify
	}
	return nil
}

// SumActiveRefunds returns the sum of amounts of refunds in an active status
// (PENDING, PROCESSING, COMPLETED) against paymentID, as a decimal string.
func (r *PaymentRepository) SumActiveRefunds(ctx context.Context, paymentID uuid.UUID) (string, error) {
	var total struct {
		Sum string
	}
	err := GetDB(ctx, r.db).
		Model(&entities.RefundTransaction{}).
		Select("COALESCE(SUM(amount), 0) as sum").
		Where("payment_transaction_id = ? AND status IN ?", paymentID, entities.ActiveRefundStatuses).
		Scan(&total).Error
	if err != nil {
		return "0", err
	}
	if total.Sum == "" {
		return "0", nil
	}
	return total.Sum, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
