package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"paygate.backend/internal/domain/entities"
)

// WebhookRepository is the C9 persistence port for WebhookEvent rows.
type WebhookRepository interface {
	Create(ctx context.Context, event *entities.WebhookEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookEvent, error)
	FindByProviderEvent(ctx context.Context, providerID uuid.UUID, providerEventID string) (*entities.WebhookEvent, error)
	Update(ctx context.Context, event *entities.WebhookEvent) error
	// ListDueForRetry returns up to limit FAILED events whose NextRetryAt has
	// elapsed, oldest first (C12 retry loop).
	ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]*entities.WebhookEvent, error)
	// DeleteOlderThan purges events older than cutoff (C12 cleanup loop).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
