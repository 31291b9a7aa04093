package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
)

// PaymentStatus is the status machine driven by §4.7 of the gateway spec.
type PaymentStatus string

const (
	PaymentStatusPending            PaymentStatus = "PENDING"
	PaymentStatusProcessing         PaymentStatus = "PROCESSING"
	PaymentStatusCompleted          PaymentStatus = "COMPLETED"
	PaymentStatusFailed             PaymentStatus = "FAILED"
	PaymentStatusRefunded           PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded  PaymentStatus = "PARTIALLY_REFUNDED"
)

// paymentTransitions enumerates every edge the state machine allows.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusProcessing},
	PaymentStatusProcessing:        {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:         {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
}

// CanTransition reports whether from -> to is a legal edge of the payment
// state machine (including the trivial identity edge for idempotent retries).
func CanTransition(from, to PaymentStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status is a terminal payment state.
func IsTerminal(status PaymentStatus) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// PaymentTransaction is the authoritative record of a client-initiated payment.
type PaymentTransaction struct {
	ID                    uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	IdempotencyKey        string          `json:"-" gorm:"uniqueIndex:idx_payments_idem_key,where:deleted_at IS NULL;not null"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:decimal(18,2);not null"`
	Currency              string          `json:"currency" gorm:"size:3;not null"`
	Status                PaymentStatus   `json:"status" gorm:"not null;default:'PENDING'"`
	CustomerID             string         `json:"customerId"`
	OrderID                string         `json:"orderId"`
	Description            string         `json:"description,omitempty"`
	ReturnURL              string         `json:"-"`
	CancelURL              string         `json:"-"`
	Metadata               map[string]string `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	ProviderID             uuid.UUID      `json:"providerId" gorm:"index;not null"`
	ProviderName           string         `json:"providerName"`
	ProviderTransactionID  null.String    `json:"providerTransactionId,omitempty"`
	PaymentURL             null.String    `json:"paymentUrl,omitempty"`
	ErrorMessage           null.String    `json:"errorMessage,omitempty"`
	ProviderErrorCode      null.String    `json:"providerErrorCode,omitempty"`
	RetryCount             int            `json:"retryCount"`
	CorrelationID          string         `json:"correlationId"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt               time.Time     `json:"updatedAt"`
	CompletedAt            *time.Time     `json:"completedAt,omitempty"`
	RowVersion             int64          `json:"-" gorm:"default:1"`
	DeletedAt              gorm.DeletedAt `json:"-" gorm:"index"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// Validate enforces the amount/currency invariants of §3.
func (p *PaymentTransaction) Validate() error {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return errInvalidAmount
	}
	if len(p.Currency) != 3 {
		return errInvalidCurrency
	}
	return nil
}

var (
	errInvalidAmount   = newValidationErr("amount must be greater than zero")
	errInvalidCurrency = newValidationErr("currency must be a 3-letter ISO-4217 code")
)

type validationErr string

func (e validationErr) Error() string { return string(e) }

func newValidationErr(msg string) error { return validationErr(msg) }

// CreatePaymentRequest is the client-facing input to the payment orchestrator.
type CreatePaymentRequest struct {
	IdempotencyKey     string
	Amount             decimal.Decimal
	Currency           string
	CustomerID         string
	OrderID            string
	Description        string
	ReturnURL          string
	CancelURL          string
	Metadata           map[string]string
	PreferredProvider  string
	CorrelationID      string
}
