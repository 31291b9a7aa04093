package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// WebhookProcessingStatus tracks a webhook event through ingestion and dispatch.
type WebhookProcessingStatus string

const (
	WebhookStatusPending    WebhookProcessingStatus = "PENDING"
	WebhookStatusProcessing WebhookProcessingStatus = "PROCESSING"
	WebhookStatusCompleted  WebhookProcessingStatus = "COMPLETED"
	WebhookStatusFailed     WebhookProcessingStatus = "FAILED"
	WebhookStatusDuplicate  WebhookProcessingStatus = "DUPLICATE"
)

// MaxWebhookAttempts caps redrive attempts before giving up permanently (§4.9).
const MaxWebhookAttempts = 5

// WebhookEvent is a provider-initiated notification, deduplicated on
// (ProviderID, ProviderEventID).
type WebhookEvent struct {
	ID                   uuid.UUID               `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	// idx_webhook_dedup is partial (excludes DUPLICATE rows) so the
	// application can persist one forensic record per duplicate delivery
	// instead of the insert always failing against the first-seen row.
	ProviderID             uuid.UUID               `json:"providerId" gorm:"uniqueIndex:idx_webhook_dedup,where:processing_status <> 'DUPLICATE';not null"`
	ProviderEventID        string                  `json:"providerEventId" gorm:"uniqueIndex:idx_webhook_dedup,where:processing_status <> 'DUPLICATE';not null"`
	EventType              string                  `json:"eventType"`
	RawPayload             string                  `json:"-"`
	ParsedPayload          null.String             `json:"-"`
	Signature              null.String             `json:"-"`
	SignatureValidated     bool                    `json:"signatureValidated"`
	IPAddress              null.String             `json:"ipAddress,omitempty"`
	UserAgent              null.String             `json:"userAgent,omitempty"`
	ProcessingStatus       WebhookProcessingStatus `json:"processingStatus" gorm:"not null;default:'PENDING'"`
	ProcessingAttempts     int                     `json:"processingAttempts"`
	ProcessedAt            *time.Time              `json:"processedAt,omitempty"`
	FailedAt               *time.Time              `json:"failedAt,omitempty"`
	FailureReason          null.String             `json:"-"`
	NextRetryAt            *time.Time              `json:"nextRetryAt,omitempty"`
	PaymentTransactionID   *uuid.UUID              `json:"paymentTransactionId,omitempty"`
	RefundTransactionID    *uuid.UUID              `json:"refundTransactionId,omitempty"`
	CreatedAt              time.Time               `json:"createdAt"`
	UpdatedAt              time.Time               `json:"updatedAt"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// IngestWebhookRequest is the raw input handed to the webhook ingress.
type IngestWebhookRequest struct {
	ProviderName string
	RawBody      []byte
	Headers      map[string]string
	SourceIP     string
}
