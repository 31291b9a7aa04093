package repositories

import (
	"context"

	"github.com/google/uuid"
	"paygate.backend/internal/domain/entities"
)

// ProviderRepository is the C2 provider-registry persistence port.
type ProviderRepository interface {
	Register(ctx context.Context, provider *entities.Provider) error
	ListAll(ctx context.Context) ([]*entities.Provider, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Provider, error)
	GetByName(ctx context.Context, name string) (*entities.Provider, error)
	ListActiveByCurrency(ctx context.Context, currency string) ([]*entities.Provider, error)
	Update(ctx context.Context, provider *entities.Provider) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.ProviderStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}
