package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/interfaces/http/response"
	"paygate.backend/internal/orchestrator"
)

// RefundHandler serves POST /v1/payments/{id}/refund.
type RefundHandler struct {
	orchestrator *orchestrator.RefundOrchestrator
}

func NewRefundHandler(o *orchestrator.RefundOrchestrator) *RefundHandler {
	return &RefundHandler{orchestrator: o}
}

type createRefundBody struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
	Full   bool   `json:"full"`
}

// Create handles POST /v1/payments/{id}/refund.
func (h *RefundHandler) Create(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid payment id"))
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		response.Error(c, domainerrors.IdempotencyKeyRequired())
		return
	}

	var body createRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation("malformed request body"))
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		response.Error(c, domainerrors.Validation("amount must be a positive decimal string"))
		return
	}

	refundType := entities.RefundTypePartial
	if body.Full {
		refundType = entities.RefundTypeFull
	}

	req := entities.CreateRefundRequest{
		IdempotencyKey:       idempotencyKey,
		PaymentTransactionID: paymentID,
		Amount:               amount,
		Reason:               body.Reason,
		RefundType:           refundType,
		CorrelationID:        correlationID(c),
	}

	refund, err := h.orchestrator.ProcessRefund(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, refund)
}
