// Package audit implements the C10 append-only transaction log: one row
// per status transition, generalized from the teacher's blockchain event
// repository into a status-transition record.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"paygate.backend/internal/domain/entities"
	domainrepos "paygate.backend/internal/domain/repositories"
	"paygate.backend/pkg/utils"
)

// Log records and replays payment status transitions.
type Log struct {
	repo domainrepos.AuditRepository
}

// New builds a Log over repo.
func New(repo domainrepos.AuditRepository) *Log {
	return &Log{repo: repo}
}

// Record appends one transition. previousStatus may be empty for the
// initial PaymentCreated entry, which has no prior state.
func (l *Log) Record(ctx context.Context, paymentID uuid.UUID, previousStatus, newStatus, eventType, message string, providerResponse, errorDetails, correlationID string) error {
	entry := &entities.TransactionLog{
		ID:                   utils.GenerateUUIDv7(),
		PaymentTransactionID: paymentID,
		NewStatus:            newStatus,
		EventType:            eventType,
		Message:              message,
		CorrelationID:        correlationID,
	}
	if previousStatus != "" {
		entry.PreviousStatus = null.StringFrom(previousStatus)
	}
	if providerResponse != "" {
		entry.ProviderResponse = null.StringFrom(providerResponse)
	}
	if errorDetails != "" {
		entry.ErrorDetails = null.StringFrom(errorDetails)
	}
	return l.repo.Append(ctx, entry)
}

// History returns every transition recorded for paymentID, oldest first.
func (l *Log) History(ctx context.Context, paymentID uuid.UUID) ([]*entities.TransactionLog, error) {
	return l.repo.ListByPayment(ctx, paymentID)
}
