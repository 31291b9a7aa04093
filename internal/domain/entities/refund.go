package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
)

// RefundStatus is the refund-specific status machine (a strict subset of the
// payment machine: no REFUNDED/PARTIALLY_REFUNDED branching on a refund itself).
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "PENDING"
	RefundStatusProcessing RefundStatus = "PROCESSING"
	RefundStatusCompleted  RefundStatus = "COMPLETED"
	RefundStatusFailed     RefundStatus = "FAILED"
)

// RefundType distinguishes a full settlement refund from a partial one.
type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

// RefundTransaction records a refund against a parent PaymentTransaction.
type RefundTransaction struct {
	ID                    uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	IdempotencyKey        string          `json:"-" gorm:"uniqueIndex:idx_refunds_idem_key,where:deleted_at IS NULL;not null"`
	PaymentTransactionID  uuid.UUID       `json:"paymentTransactionId" gorm:"index;not null"`
	ProviderID            uuid.UUID       `json:"providerId" gorm:"not null"`
	ProviderRefundID      null.String     `json:"providerRefundId,omitempty"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:decimal(19,4);not null"`
	Currency              string          `json:"currency" gorm:"size:3;not null"`
	Status                RefundStatus    `json:"status" gorm:"not null;default:'PENDING'"`
	RefundType            RefundType      `json:"refundType"`
	Reason                null.String     `json:"reason,omitempty"`
	CorrelationID         string          `json:"correlationId"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
	CompletedAt           *time.Time      `json:"completedAt,omitempty"`
	RowVersion            int64           `json:"-" gorm:"default:1"`
	DeletedAt             gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (RefundTransaction) TableName() string { return "refund_transactions" }

// ActiveRefundStatuses are the refund states that count against a payment's
// refundable balance: Σ(pending+processing+completed) ≤ payment.amount.
var ActiveRefundStatuses = []RefundStatus{RefundStatusPending, RefundStatusProcessing, RefundStatusCompleted}

func IsActiveRefundStatus(s RefundStatus) bool {
	for _, v := range ActiveRefundStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// CreateRefundRequest is the client-facing input to the refund orchestrator.
type CreateRefundRequest struct {
	IdempotencyKey       string
	PaymentTransactionID uuid.UUID
	Amount               decimal.Decimal
	Reason               string
	RefundType           RefundType
	CorrelationID        string
}
