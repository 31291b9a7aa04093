package routing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/domain/entities"
)

type fakeRegistry struct {
	byName  map[string]*entities.Provider
	active  []*entities.Provider
}

func (f *fakeRegistry) Register(ctx context.Context, provider *entities.Provider) error { return nil }
func (f *fakeRegistry) ListAll(ctx context.Context) ([]*entities.Provider, error)        { return nil, nil }
func (f *fakeRegistry) GetByID(ctx context.Context, id uuid.UUID) (*entities.Provider, error) {
	return nil, domainerrors.NotFound("not found")
}
func (f *fakeRegistry) GetByName(ctx context.Context, name string) (*entities.Provider, error) {
	if p, ok := f.byName[name]; ok {
		return p, nil
	}
	return nil, domainerrors.NotFound("not found")
}
func (f *fakeRegistry) ListActiveByCurrency(ctx context.Context, currency string) ([]*entities.Provider, error) {
	var out []*entities.Provider
	for _, p := range f.active {
		if p.SupportedCurrencies.Contains(currency) {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeRegistry) Update(ctx context.Context, provider *entities.Provider) error { return nil }
func (f *fakeRegistry) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.ProviderStatus) error {
	return nil
}
func (f *fakeRegistry) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type fakeBreaker struct{ open map[string]bool }

func (f *fakeBreaker) IsOpen(provider, region string) bool { return f.open[provider] }

func provider(name string, priority int, currencies ...string) *entities.Provider {
	return &entities.Provider{
		ID:                  uuid.New(),
		Name:                name,
		Status:              entities.ProviderStatusActive,
		Priority:            priority,
		SupportedCurrencies: entities.StringSet(currencies),
	}
}

func TestSelectProvider_PrefersNamedProviderWhenEligible(t *testing.T) {
	stripe := provider("stripe", 200, "USD")
	omise := provider("omise", 100, "USD")
	reg := &fakeRegistry{
		byName: map[string]*entities.Provider{"stripe": stripe},
		active: []*entities.Provider{stripe, omise},
	}
	r := New(reg, nil)

	preferred := "stripe"
	got, err := r.SelectProvider(context.Background(), "USD", &preferred)
	require.NoError(t, err)
	assert.Equal(t, "stripe", got.Name)
}

func TestSelectProvider_IgnoresPreferredWhenUnsupportedCurrency(t *testing.T) {
	stripe := provider("stripe", 200, "EUR")
	omise := provider("omise", 100, "USD")
	reg := &fakeRegistry{
		byName: map[string]*entities.Provider{"stripe": stripe},
		active: []*entities.Provider{stripe, omise},
	}
	r := New(reg, nil)

	preferred := "stripe"
	got, err := r.SelectProvider(context.Background(), "USD", &preferred)
	require.NoError(t, err)
	assert.Equal(t, "omise", got.Name)
}

func TestSelectProvider_OrdersByPriorityThenName(t *testing.T) {
	a := provider("bravo", 100, "USD")
	b := provider("alpha", 100, "USD")
	reg := &fakeRegistry{active: []*entities.Provider{a, b}}
	r := New(reg, nil)

	got, err := r.SelectProvider(context.Background(), "USD", nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name, "ties on priority break lexicographically by name")
}

func TestSelectProvider_SkipsOpenBreaker(t *testing.T) {
	primary := provider("stripe", 100, "USD")
	backup := provider("omise", 200, "USD")
	reg := &fakeRegistry{active: []*entities.Provider{primary, backup}}
	r := New(reg, &fakeBreaker{open: map[string]bool{"stripe": true}})

	got, err := r.SelectProvider(context.Background(), "USD", nil)
	require.NoError(t, err)
	assert.Equal(t, "omise", got.Name)
}

func TestSelectProvider_NoEligibleProvider(t *testing.T) {
	reg := &fakeRegistry{}
	r := New(reg, nil)

	_, err := r.SelectProvider(context.Background(), "JPY", nil)
	assert.ErrorIs(t, err, domainerrors.ErrNoEligibleProvider)
}
