package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/interfaces/http/response"
	"paygate.backend/internal/registry"
	"paygate.backend/pkg/utils"
)

// ProviderHandler serves /v1/providers, the admin surface over the C2
// provider registry. Every response passes through Provider.SafeCopy so
// stored credentials never reach an HTTP client.
type ProviderHandler struct {
	registry *registry.CachedRegistry
}

func NewProviderHandler(r *registry.CachedRegistry) *ProviderHandler {
	return &ProviderHandler{registry: r}
}

type createProviderBody struct {
	Name                string            `json:"name"`
	DisplayName         string            `json:"displayName"`
	SupportedCurrencies []string          `json:"supportedCurrencies"`
	Priority            int               `json:"priority"`
	Credentials         map[string]string `json:"credentials"`
}

type updateProviderStatusBody struct {
	Status entities.ProviderStatus `json:"status"`
}

// List handles GET /v1/providers?page=&limit=. The admin surface is small
// enough (providers, not transactions) that pagination is applied in-memory
// over the full registry listing rather than pushed down to SQL.
func (h *ProviderHandler) List(c *gin.Context) {
	providers, err := h.registry.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	params := utils.GetPaginationParams(page, limit)
	meta := utils.CalculateMeta(int64(len(providers)), params.Page, params.Limit)

	pageProviders := providers
	if params.Limit > 0 {
		offset := params.CalculateOffset()
		if offset > len(providers) {
			offset = len(providers)
		}
		end := offset + params.Limit
		if end > len(providers) {
			end = len(providers)
		}
		pageProviders = providers[offset:end]
	}

	response.Success(c, http.StatusOK, gin.H{
		"data": safeCopies(pageProviders),
		"meta": meta,
	})
}

// Active handles GET /v1/providers/active?currency=XXX.
func (h *ProviderHandler) Active(c *gin.Context) {
	currency := c.Query("currency")
	if currency == "" {
		response.Error(c, domainerrors.Validation("currency query parameter is required"))
		return
	}
	providers, err := h.registry.ListActiveByCurrency(c.Request.Context(), currency)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, safeCopies(providers))
}

// GetByID handles GET /v1/providers/{id}.
func (h *ProviderHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid provider id"))
		return
	}
	provider, err := h.registry.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, provider.SafeCopy())
}

// Create handles POST /v1/providers.
func (h *ProviderHandler) Create(c *gin.Context) {
	var body createProviderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation("malformed request body"))
		return
	}
	if body.Name == "" {
		response.Error(c, domainerrors.Validation("name is required"))
		return
	}

	provider := &entities.Provider{
		Name:                body.Name,
		DisplayName:         body.DisplayName,
		Status:              entities.ProviderStatusActive,
		SupportedCurrencies: entities.StringSet(body.SupportedCurrencies),
		Priority:            body.Priority,
		Credentials:         body.Credentials,
	}

	if err := h.registry.Register(c.Request.Context(), provider); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, provider.SafeCopy())
}

// Update handles PUT /v1/providers/{id}.
func (h *ProviderHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid provider id"))
		return
	}

	existing, err := h.registry.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	var body createProviderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation("malformed request body"))
		return
	}

	existing.DisplayName = body.DisplayName
	existing.SupportedCurrencies = entities.StringSet(body.SupportedCurrencies)
	existing.Priority = body.Priority
	if len(body.Credentials) > 0 {
		existing.Credentials = body.Credentials
	}

	if err := h.registry.Update(c.Request.Context(), existing); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, existing.SafeCopy())
}

// UpdateStatus handles PATCH /v1/providers/{id}/status.
func (h *ProviderHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid provider id"))
		return
	}

	var body updateProviderStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation("malformed request body"))
		return
	}

	switch body.Status {
	case entities.ProviderStatusActive, entities.ProviderStatusDisabled,
		entities.ProviderStatusDegraded, entities.ProviderStatusMaintenance:
	default:
		response.Error(c, domainerrors.Validation("unknown provider status"))
		return
	}

	if err := h.registry.UpdateStatus(c.Request.Context(), id, body.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "status": body.Status})
}

// Delete handles DELETE /v1/providers/{id}.
func (h *ProviderHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid provider id"))
		return
	}
	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func safeCopies(providers []*entities.Provider) []*entities.Provider {
	out := make([]*entities.Provider, len(providers))
	for i, p := range providers {
		out[i] = p.SafeCopy()
	}
	return out
}
