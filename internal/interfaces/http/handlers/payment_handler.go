// Package handlers implements the HTTP transport shell (gin) that binds
// requests, calls into the C7/C8/C9/C2 components, and renders responses
// through the shared response package, mirroring the teacher's thin
// handler-calls-usecase style.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	domainrepos "paygate.backend/internal/domain/repositories"
	"paygate.backend/internal/interfaces/http/response"
	"paygate.backend/internal/orchestrator"
)

// PaymentHandler serves /v1/payments.
type PaymentHandler struct {
	orchestrator *orchestrator.PaymentOrchestrator
	payments     domainrepos.PaymentRepository
}

func NewPaymentHandler(o *orchestrator.PaymentOrchestrator, payments domainrepos.PaymentRepository) *PaymentHandler {
	return &PaymentHandler{orchestrator: o, payments: payments}
}

type createPaymentBody struct {
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	CustomerID        string            `json:"customerId"`
	OrderID           string            `json:"orderId"`
	Description       string            `json:"description"`
	ReturnURL         string            `json:"returnUrl"`
	CancelURL         string            `json:"cancelUrl"`
	Metadata          map[string]string `json:"metadata"`
	PreferredProvider string            `json:"preferredProvider"`
}

// Create handles POST /v1/payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		response.Error(c, domainerrors.IdempotencyKeyRequired())
		return
	}

	var body createPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation("malformed request body"))
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		response.Error(c, domainerrors.Validation("amount must be a positive decimal string"))
		return
	}
	if !isHTTPSOrEmpty(body.ReturnURL) || !isHTTPSOrEmpty(body.CancelURL) {
		response.Error(c, domainerrors.Validation("returnUrl and cancelUrl must be HTTPS"))
		return
	}

	req := entities.CreatePaymentRequest{
		IdempotencyKey:    idempotencyKey,
		Amount:            amount,
		Currency:          body.Currency,
		CustomerID:        body.CustomerID,
		OrderID:           body.OrderID,
		Description:       body.Description,
		ReturnURL:         body.ReturnURL,
		CancelURL:         body.CancelURL,
		Metadata:          body.Metadata,
		PreferredProvider: body.PreferredProvider,
		CorrelationID:     correlationID(c),
	}

	payment, err := h.orchestrator.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, payment)
}

// GetByID handles GET /v1/payments/{id}.
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid payment id"))
		return
	}
	payment, err := h.payments.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payment)
}

func isHTTPSOrEmpty(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}

func correlationID(c *gin.Context) string {
	if id, ok := c.Get("request_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
