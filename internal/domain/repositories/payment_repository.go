package repositories

import (
	"context"

	"github.com/google/uuid"
	"paygate.backend/internal/domain/entities"
)

// PaymentRepository is the C7 persistence port for PaymentTransaction rows.
type PaymentRepository interface {
	Create(ctx context.Context, payment *entities.PaymentTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentTransaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entities.PaymentTransaction, error)
	// GetByProviderTransactionID looks up the payment a webhook delivery
	// refers to by the provider's own transaction reference.
	GetByProviderTransactionID(ctx context.Context, providerTransactionID string) (*entities.PaymentTransaction, error)
	// Update performs an optimistic-concurrency update gated on RowVersion;
	// implementations must return errors.ErrConcurrentModify when the row's
	// current RowVersion no longer matches payment.RowVersion.
	Update(ctx context.Context, payment *entities.PaymentTransaction) error
	SumActiveRefunds(ctx context.Context, paymentID uuid.UUID) (refundedAmount string, err error)
}
