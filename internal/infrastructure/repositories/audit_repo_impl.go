package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"paygate.backend/internal/domain/entities"
)

// AuditRepository implements the append-only transaction log (C10) using GORM.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a new, immutable TransactionLog row.
func (r *AuditRepository) Append(ctx context.Context, entry *entities.TransactionLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

// ListByPayment returns every log entry for a payment, oldest first.
func (r *AuditRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.TransactionLog, error) {
	var entries []*entities.TransactionLog
	err := GetDB(ctx, r.db).
		Where("payment_transaction_id = ?", paymentID).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
