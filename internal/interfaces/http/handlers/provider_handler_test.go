package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/registry"
)

type fakeProviderRepo struct {
	byID map[uuid.UUID]*entities.Provider
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{byID: make(map[uuid.UUID]*entities.Provider)}
}

func (f *fakeProviderRepo) Register(ctx context.Context, p *entities.Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProviderRepo) ListAll(ctx context.Context) ([]*entities.Provider, error) {
	out := make([]*entities.Provider, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Provider, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return p, nil
}

func (f *fakeProviderRepo) GetByName(ctx context.Context, name string) (*entities.Provider, error) {
	for _, p := range f.byID {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (f *fakeProviderRepo) ListActiveByCurrency(ctx context.Context, currency string) ([]*entities.Provider, error) {
	var out []*entities.Provider
	for _, p := range f.byID {
		if p.Status == entities.ProviderStatusActive && p.SupportedCurrencies.Contains(currency) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProviderRepo) Update(ctx context.Context, p *entities.Provider) error {
	if _, ok := f.byID[p.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProviderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.ProviderStatus) error {
	p, ok := f.byID[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	p.Status = status
	return nil
}

func (f *fakeProviderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return domainerrors.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func newTestProviderHandler(repo *fakeProviderRepo) *ProviderHandler {
	return NewProviderHandler(registry.New(repo))
}

func testContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestProviderHandler_CreateAndGetByID(t *testing.T) {
	repo := newFakeProviderRepo()
	h := newTestProviderHandler(repo)

	c, w := testContext(http.MethodPost, "/v1/providers", []byte(`{
		"name": "stripe",
		"displayName": "Stripe",
		"supportedCurrencies": ["USD", "EUR"],
		"priority": 10,
		"credentials": {"apiKey": "sk_test_123"}
	}`))
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "sk_test_123")

	var created uuid.UUID
	for id := range repo.byID {
		created = id
	}
	require.NotEqual(t, uuid.Nil, created)

	c2, w2 := testContext(http.MethodGet, "/v1/providers/"+created.String(), nil)
	c2.Params = gin.Params{{Key: "id", Value: created.String()}}
	h.GetByID(c2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "stripe")
	assert.NotContains(t, w2.Body.String(), "sk_test_123")
}

func TestProviderHandler_GetByIDNotFound(t *testing.T) {
	h := newTestProviderHandler(newFakeProviderRepo())
	c, w := testContext(http.MethodGet, "/v1/providers/"+uuid.New().String(), nil)
	c.Params = gin.Params{{Key: "id", Value: uuid.New().String()}}
	h.GetByID(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviderHandler_UpdateStatusRejectsUnknownValue(t *testing.T) {
	repo := newFakeProviderRepo()
	provider := &entities.Provider{Name: "stripe", Status: entities.ProviderStatusActive}
	require.NoError(t, repo.Register(context.Background(), provider))

	h := newTestProviderHandler(repo)
	c, w := testContext(http.MethodPatch, "/v1/providers/"+provider.ID.String()+"/status", []byte(`{"status":"BOGUS"}`))
	c.Params = gin.Params{{Key: "id", Value: provider.ID.String()}}
	h.UpdateStatus(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderHandler_UpdateStatusAppliesValidTransition(t *testing.T) {
	repo := newFakeProviderRepo()
	provider := &entities.Provider{Name: "stripe", Status: entities.ProviderStatusActive}
	require.NoError(t, repo.Register(context.Background(), provider))

	h := newTestProviderHandler(repo)
	c, w := testContext(http.MethodPatch, "/v1/providers/"+provider.ID.String()+"/status", []byte(`{"status":"DISABLED"}`))
	c.Params = gin.Params{{Key: "id", Value: provider.ID.String()}}
	h.UpdateStatus(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entities.ProviderStatusDisabled, repo.byID[provider.ID].Status)
}

func TestProviderHandler_ActiveRequiresCurrencyQuery(t *testing.T) {
	h := newTestProviderHandler(newFakeProviderRepo())
	c, w := testContext(http.MethodGet, "/v1/providers/active", nil)
	h.Active(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderHandler_Delete(t *testing.T) {
	repo := newFakeProviderRepo()
	provider := &entities.Provider{Name: "stripe", Status: entities.ProviderStatusActive}
	require.NoError(t, repo.Register(context.Background(), provider))

	h := newTestProviderHandler(repo)
	c, w := testContext(http.MethodDelete, "/v1/providers/"+provider.ID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: provider.ID.String()}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := repo.byID[provider.ID]
	assert.False(t, ok)
}
