package repositories

import (
	"context"

	"github.com/google/uuid"
	"paygate.backend/internal/domain/entities"
)

// AuditRepository is the C10 append-only persistence port for TransactionLog rows.
type AuditRepository interface {
	Append(ctx context.Context, entry *entities.TransactionLog) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.TransactionLog, error)
}
