package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/audit"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/events"
	"paygate.backend/internal/webhook"
)

type fakeWebhookRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*entities.WebhookEvent
	purged int64
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{byID: make(map[uuid.UUID]*entities.WebhookEvent)}
}

func (f *fakeWebhookRepo) Create(ctx context.Context, event *entities.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	cp := *event
	f.byID[event.ID] = &cp
	return nil
}
func (f *fakeWebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}
func (f *fakeWebhookRepo) FindByProviderEvent(ctx context.Context, providerID uuid.UUID, providerEventID string) (*entities.WebhookEvent, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeWebhookRepo) Update(ctx context.Context, event *entities.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *event
	f.byID[event.ID] = &cp
	return nil
}
func (f *fakeWebhookRepo) ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]*entities.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.WebhookEvent
	for _, e := range f.byID {
		if e.ProcessingStatus == entities.WebhookStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (f *fakeWebhookRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.byID {
		if e.CreatedAt.Before(cutoff) {
			delete(f.byID, id)
			n++
		}
	}
	f.purged += n
	return n, nil
}

type fakeProviderRepo struct{}

func (f *fakeProviderRepo) Register(ctx context.Context, p *entities.Provider) error { return nil }
func (f *fakeProviderRepo) ListAll(ctx context.Context) ([]*entities.Provider, error) {
	return nil, nil
}
func (f *fakeProviderRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Provider, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeProviderRepo) GetByName(ctx context.Context, name string) (*entities.Provider, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeProviderRepo) ListActiveByCurrency(ctx context.Context, currency string) ([]*entities.Provider, error) {
	return nil, nil
}
func (f *fakeProviderRepo) Update(ctx context.Context, p *entities.Provider) error { return nil }
func (f *fakeProviderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.ProviderStatus) error {
	return nil
}
func (f *fakeProviderRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type fakePaymentRepo struct{}

func (f *fakePaymentRepo) Create(ctx context.Context, p *entities.PaymentTransaction) error {
	return nil
}
func (f *fakePaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakePaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entities.PaymentTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakePaymentRepo) GetByProviderTransactionID(ctx context.Context, id string) (*entities.PaymentTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakePaymentRepo) Update(ctx context.Context, p *entities.PaymentTransaction) error {
	return nil
}
func (f *fakePaymentRepo) SumActiveRefunds(ctx context.Context, id uuid.UUID) (string, error) {
	return "0", nil
}

type fakeRefundRepo struct{}

func (f *fakeRefundRepo) Create(ctx context.Context, r *entities.RefundTransaction) error {
	return nil
}
func (f *fakeRefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.RefundTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeRefundRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entities.RefundTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeRefundRepo) GetByProviderRefundID(ctx context.Context, id string) (*entities.RefundTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeRefundRepo) Update(ctx context.Context, r *entities.RefundTransaction) error {
	return nil
}
func (f *fakeRefundRepo) ListActiveByPayment(ctx context.Context, id uuid.UUID) ([]*entities.RefundTransaction, error) {
	return nil, nil
}

type fakeAuditRepo struct{}

func (f *fakeAuditRepo) Append(ctx context.Context, e *entities.TransactionLog) error { return nil }
func (f *fakeAuditRepo) ListByPayment(ctx context.Context, id uuid.UUID) ([]*entities.TransactionLog, error) {
	return nil, nil
}

func newTestProcessor(webhooks *fakeWebhookRepo) *webhook.Processor {
	return webhook.NewProcessor(webhooks, &fakeProviderRepo{}, &fakePaymentRepo{}, &fakeRefundRepo{}, adapter.NewFactory(), audit.New(&fakeAuditRepo{}), events.New(nil, nil), nil)
}

func TestScheduler_RedriveDuePicksUpFailedEventsPastNextRetry(t *testing.T) {
	webhooks := newFakeWebhookRepo()
	past := time.Now().Add(-time.Minute)
	event := &entities.WebhookEvent{
		ID:               uuid.New(),
		ProviderID:       uuid.New(),
		ProcessingStatus: entities.WebhookStatusFailed,
		NextRetryAt:      &past,
	}
	require.NoError(t, webhooks.Create(context.Background(), event))

	s := New(webhooks, newTestProcessor(webhooks), nil, nil)
	s.redriveDue(context.Background())

	updated, err := webhooks.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	// GetByID on an unknown provider fails inside apply(), so the event is
	// re-marked FAILED with one more attempt recorded rather than COMPLETED.
	assert.Equal(t, entities.WebhookStatusFailed, updated.ProcessingStatus)
	assert.Equal(t, 1, updated.ProcessingAttempts)
}

func TestScheduler_PurgeOldDeletesEventsPastRetention(t *testing.T) {
	webhooks := newFakeWebhookRepo()
	old := &entities.WebhookEvent{ID: uuid.New(), CreatedAt: time.Now().Add(-100 * 24 * time.Hour)}
	recent := &entities.WebhookEvent{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, webhooks.Create(context.Background(), old))
	require.NoError(t, webhooks.Create(context.Background(), recent))

	s := New(webhooks, newTestProcessor(webhooks), nil, nil)
	s.purgeOld(context.Background())

	_, err := webhooks.GetByID(context.Background(), old.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	_, err = webhooks.GetByID(context.Background(), recent.ID)
	assert.NoError(t, err)
}

func TestScheduler_StartAndStopDoNotPanic(t *testing.T) {
	webhooks := newFakeWebhookRepo()
	s := New(webhooks, newTestProcessor(webhooks), webhook.NewRateLimiter(time.Minute), nil)
	s.retryInterval = 5 * time.Millisecond
	s.cleanupInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Start(ctx)
	<-ctx.Done()
}
