package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingBus struct{ calls int }

func (b *failingBus) Publish(ctx context.Context, event DomainEvent) error {
	b.calls++
	return errors.New("broker unavailable")
}

type recordingBus struct{ received []DomainEvent }

func (b *recordingBus) Publish(ctx context.Context, event DomainEvent) error {
	b.received = append(b.received, event)
	return nil
}

func TestPublisher_Publish_SwallowsTransportError(t *testing.T) {
	bus := &failingBus{}
	p := New(bus, nil)

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), DomainEvent{Type: PaymentCreated, PaymentID: "p1"})
	})
	assert.Equal(t, 1, bus.calls)
}

func TestPublisher_Publish_DeliversToBus(t *testing.T) {
	bus := &recordingBus{}
	p := New(bus, nil)

	p.Publish(context.Background(), DomainEvent{Type: PaymentCompleted, PaymentID: "p1", CorrelationID: "corr-1"})

	assert.Len(t, bus.received, 1)
	assert.Equal(t, PaymentCompleted, bus.received[0].Type)
	assert.Equal(t, "corr-1", bus.received[0].CorrelationID)
}

func TestNew_DefaultsToNoopBus(t *testing.T) {
	p := New(nil, nil)
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), DomainEvent{Type: RefundCreated})
	})
}
