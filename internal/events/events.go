// Package events implements the C11 fire-and-forget domain event publisher.
// A publish failure is always logged and never fails the caller: the state
// change already committed is authoritative, and a reconciler can replay
// missed events from the audit log.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event type labels, matching the TransactionLog event-type vocabulary.
const (
	PaymentCreated   = "PaymentCreatedEvent"
	PaymentCompleted = "PaymentCompletedEvent"
	PaymentFailed    = "PaymentFailedEvent"
	RefundCreated    = "RefundCreatedEvent"
	RefundCompleted  = "RefundCompletedEvent"
	RefundFailed     = "RefundFailedEvent"
)

// DomainEvent is a single emitted fact about a payment or refund.
type DomainEvent struct {
	Type          string
	CorrelationID string
	PaymentID     string
	RefundID      string
	OccurredAt    time.Time
	Attributes    map[string]string
}

// Bus is the transport a Publisher hands events to. The default
// implementation logs to stdout via the structured logger; a durable
// broker can be substituted without changing orchestrator code.
type Bus interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// Publisher wraps a Bus, swallowing and logging publish errors so that
// orchestrators can call Publish without branching on the result.
type Publisher struct {
	bus    Bus
	logger *zap.Logger
}

// New builds a Publisher. If bus is nil, a NoopBus is used.
func New(bus Bus, logger *zap.Logger) *Publisher {
	if bus == nil {
		bus = NoopBus{logger: logger}
	}
	return &Publisher{bus: bus, logger: logger}
}

// Publish emits event, logging (never returning) a transport failure.
func (p *Publisher) Publish(ctx context.Context, event DomainEvent) {
	if err := p.bus.Publish(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.Error("event publish failed",
				zap.String("eventType", event.Type),
				zap.String("correlationId", event.CorrelationID),
				zap.Error(err),
			)
		}
	}
}

// NoopBus logs every event at info level and never fails. It is the
// default bus when no message broker is configured, since the teacher's
// dependency set carries no broker client.
type NoopBus struct {
	logger *zap.Logger
}

func (b NoopBus) Publish(ctx context.Context, event DomainEvent) error {
	if b.logger != nil {
		b.logger.Info("domain event",
			zap.String("eventType", event.Type),
			zap.String("correlationId", event.CorrelationID),
			zap.String("paymentId", event.PaymentID),
			zap.String("refundId", event.RefundID),
		)
	}
	return nil
}
