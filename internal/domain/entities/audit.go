package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// TransactionLog is an immutable, append-only record of one status
// transition on a PaymentTransaction. No updates, no deletes (§4.11).
type TransactionLog struct {
	ID                   uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PaymentTransactionID uuid.UUID   `json:"paymentTransactionId" gorm:"index;not null"`
	PreviousStatus       null.String `json:"previousStatus,omitempty"`
	NewStatus            string      `json:"newStatus"`
	EventType            string      `json:"eventType"`
	Message              string      `json:"message"`
	ProviderResponse      null.String `json:"providerResponse,omitempty"`
	ErrorDetails         null.String `json:"errorDetails,omitempty"`
	CorrelationID        string      `json:"correlationId"`
	CreatedAt            time.Time   `json:"createdAt"`
}

func (TransactionLog) TableName() string { return "transaction_logs" }

// Event-type labels used consistently by the orchestrators and the webhook
// processor when they append a TransactionLog row.
const (
	EventPaymentCreated  = "PaymentCreated"
	EventStatusUpdated   = "StatusUpdated"
	EventWebhookReceived = "WebhookReceived"
	EventRefundCreated   = "RefundCreated"
)
