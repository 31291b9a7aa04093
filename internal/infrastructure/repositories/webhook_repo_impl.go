package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

// WebhookRepository implements webhook event persistence (C9) using GORM.
type WebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository.
func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create inserts a new webhook event row. A duplicate (ProviderID,
// ProviderEventID) pair is reported as errors.ErrAlreadyExists so the
// ingress can short-circuit to DUPLICATE handling.
func (r *WebhookRepository) Create(ctx context.Context, event *entities.WebhookEvent) error {
	err := GetDB(ctx, r.db).Create(event).Error
	if err != nil && isUniqueViolation(err) {
		return domainerrors.ErrAlreadyExists
	}
	return err
}

// GetByID fetches one webhook event by primary key.
func (r *WebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookEvent, error) {
	var event entities.WebhookEvent
	err := GetDB(ctx, r.db).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByProviderEvent looks up an event by its dedup key.
func (r *WebhookRepository) FindByProviderEvent(ctx context.Context, providerID uuid.UUID, providerEventID string) (*entities.WebhookEvent, error) {
	var event entities.WebhookEvent
	err := GetDB(ctx, r.db).First(&event, "provider_id = ? AND provider_event_id = ?", providerID, providerEventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Update persists the full row. Webhook events carry no row version, so no
// optimistic-lock check is made, and no lock is taken around processing.
func (r *WebhookRepository) Update(ctx context.Context, event *entities.WebhookEvent) error {
	result := GetDB(ctx, r.db).Save(event)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// ListDueForRetry returns up to limit FAILED events whose NextRetryAt has
// elapsed, oldest first.
func (r *WebhookRepository) ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]*entities.WebhookEvent, error) {
	var events []*entities.WebhookEvent
	err := GetDB(ctx, r.db).
		Where("processing_status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ? AND processing_attempts < ?",
			entities.WebhookStatusFailed, now, entities.MaxWebhookAttempts).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteOlderThan hard-deletes events created before cutoff, used by the
// retention cleanup loop. Webhook rows carry no business meaning once
// terminal and past the retention window, so this is a real delete rather
// than a soft one.
func (r *WebhookRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := GetDB(ctx, r.db).Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&entities.WebhookEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
