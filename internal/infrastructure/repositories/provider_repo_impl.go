package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

// ProviderRepository implements provider data operations (C2) using GORM.
type ProviderRepository struct {
	db *gorm.DB
}

// NewProviderRepository creates a new provider repository.
func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Register creates a new provider.
func (r *ProviderRepository) Register(ctx context.Context, provider *entities.Provider) error {
	return GetDB(ctx, r.db).Create(provider).Error
}

// ListAll returns every non-deleted provider, regardless of status.
func (r *ProviderRepository) ListAll(ctx context.Context) ([]*entities.Provider, error) {
	var providers []*entities.Provider
	if err := GetDB(ctx, r.db).Preload("Configurations").Order("priority asc").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

// GetByID fetches one provider by primary key.
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Provider, error) {
	var provider entities.Provider
	err := GetDB(ctx, r.db).Preload("Configurations").First(&provider, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// GetByName fetches one provider by its unique, case-sensitive name.
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*entities.Provider, error) {
	var provider entities.Provider
	err := GetDB(ctx, r.db).Preload("Configurations").First(&provider, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// ListActiveByCurrency returns ACTIVE providers whose SupportedCurrencies
// includes currency, ordered by Priority ascending (lower value first).
func (r *ProviderRepository) ListActiveByCurrency(ctx context.Context, currency string) ([]*entities.Provider, error) {
	var all []*entities.Provider
	err := GetDB(ctx, r.db).Preload("Configurations").
		Where("status = ?", entities.ProviderStatusActive).
		Order("priority asc").
		Find(&all).Error
	if err != nil {
		return nil, err
	}

	filtered := make([]*entities.Provider, 0, len(all))
	for _, p := range all {
		if p.SupportedCurrencies.Contains(currency) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// Update persists every column of provider (full-row update, used by admin
// operations rather than the optimistic-concurrency payment/refund path).
func (r *ProviderRepository) Update(ctx context.Context, provider *entities.Provider) error {
	result := GetDB(ctx, r.db).Save(provider)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// UpdateStatus flips a provider's status, e.g. when the resilience pipeline
// trips its breaker open and wants the routing engine to stop selecting it.
func (r *ProviderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.ProviderStatus) error {
	result := GetDB(ctx, r.db).Model(&entities.Provider{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// Delete soft-deletes a provider.
func (r *ProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := GetDB(ctx, r.db).Delete(&entities.Provider{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}
