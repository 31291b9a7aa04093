package repositories

import (
	"context"

	"github.com/google/uuid"
	"paygate.backend/internal/domain/entities"
)

// RefundRepository is the C8 persistence port for RefundTransaction rows.
type RefundRepository interface {
	Create(ctx context.Context, refund *entities.RefundTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.RefundTransaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entities.RefundTransaction, error)
	// GetByProviderRefundID looks up the refund a webhook delivery refers to
	// by the provider's own refund reference.
	GetByProviderRefundID(ctx context.Context, providerRefundID string) (*entities.RefundTransaction, error)
	Update(ctx context.Context, refund *entities.RefundTransaction) error
	ListActiveByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.RefundTransaction, error)
}
