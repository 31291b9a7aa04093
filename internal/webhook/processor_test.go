package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/audit"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/events"
	"paygate.backend/internal/metrics"
)

type fakePaymentRepoWH struct {
	mu  sync.Mutex
	byID map[uuid.UUID]*entities.PaymentTransaction
}

func newFakePaymentRepoWH() *fakePaymentRepoWH {
	return &fakePaymentRepoWH{byID: make(map[uuid.UUID]*entities.PaymentTransaction)}
}

func (f *fakePaymentRepoWH) Create(ctx context.Context, p *entities.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}
func (f *fakePaymentRepoWH) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
func (f *fakePaymentRepoWH) GetByIdempotencyKey(ctx context.Context, key string) (*entities.PaymentTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakePaymentRepoWH) GetByProviderTransactionID(ctx context.Context, providerTransactionID string) (*entities.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.ProviderTransactionID.Valid && p.ProviderTransactionID.String == providerTransactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}
func (f *fakePaymentRepoWH) Update(ctx context.Context, p *entities.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[p.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}
func (f *fakePaymentRepoWH) SumActiveRefunds(ctx context.Context, paymentID uuid.UUID) (string, error) {
	return "0", nil
}

type fakeRefundRepoWH struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*entities.RefundTransaction
}

func newFakeRefundRepoWH() *fakeRefundRepoWH {
	return &fakeRefundRepoWH{byID: make(map[uuid.UUID]*entities.RefundTransaction)}
}

func (f *fakeRefundRepoWH) Create(ctx context.Context, r *entities.RefundTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.byID[r.ID] = &cp
	return nil
}
func (f *fakeRefundRepoWH) GetByID(ctx context.Context, id uuid.UUID) (*entities.RefundTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}
func (f *fakeRefundRepoWH) GetByIdempotencyKey(ctx context.Context, key string) (*entities.RefundTransaction, error) {
	return nil, domainerrors.ErrNotFound
}
func (f *fakeRefundRepoWH) GetByProviderRefundID(ctx context.Context, providerRefundID string) (*entities.RefundTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.ProviderRefundID.Valid && r.ProviderRefundID.String == providerRefundID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}
func (f *fakeRefundRepoWH) Update(ctx context.Context, r *entities.RefundTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[r.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	cp := *r
	f.byID[r.ID] = &cp
	return nil
}
func (f *fakeRefundRepoWH) ListActiveByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.RefundTransaction, error) {
	return nil, nil
}

type fakeAuditRepoWH struct {
	mu      sync.Mutex
	entries []*entities.TransactionLog
}

func (f *fakeAuditRepoWH) Append(ctx context.Context, e *entities.TransactionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}
func (f *fakeAuditRepoWH) ListByPayment(ctx context.Context, id uuid.UUID) ([]*entities.TransactionLog, error) {
	return f.entries, nil
}

func newTestProcessor(providers *fakeProviderRepo, webhooks *fakeWebhookRepo, payments *fakePaymentRepoWH, refunds *fakeRefundRepoWH, factory *adapter.Factory) *Processor {
	auditLog := audit.New(&fakeAuditRepoWH{})
	publisher := events.New(nil, nil)
	return NewProcessor(webhooks, providers, payments, refunds, factory, auditLog, publisher, nil)
}

func TestProcess_AppliesCompletedStatusToPayment(t *testing.T) {
	provider := testProviderForWebhook("stripe")
	providers := &fakeProviderRepo{byName: map[string]*entities.Provider{"stripe": provider}}
	webhooks := newFakeWebhookRepo()
	payments := newFakePaymentRepoWH()
	refunds := newFakeRefundRepoWH()

	payment := &entities.PaymentTransaction{
		ID:                    uuid.New(),
		Amount:                decimal.NewFromInt(100),
		Currency:              "USD",
		Status:                entities.PaymentStatusProcessing,
		ProviderTransactionID: null.StringFrom("pt_123"),
	}
	require.NoError(t, payments.Create(context.Background(), payment))

	factory := adapter.NewFactory()
	factory.Register("stripe", func(creds map[string]string, baseURL string) (adapter.Adapter, error) {
		return &stubWebhookAdapter{name: "stripe", verifyFn: func(headers map[string]string, body []byte, ip string) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{
				ProviderEventID:       "evt_1",
				ProviderTransactionID: "pt_123",
				Status:                entities.PaymentStatusCompleted,
			}, nil
		}}, nil
	})

	p := newTestProcessor(providers, webhooks, payments, refunds, factory)

	event := &entities.WebhookEvent{
		ID:               uuid.New(),
		ProviderID:       provider.ID,
		ProviderEventID:  "evt_1",
		RawPayload:       "{}",
		ProcessingStatus: entities.WebhookStatusPending,
	}
	require.NoError(t, webhooks.Create(context.Background(), event))

	err := p.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, entities.WebhookStatusCompleted, event.ProcessingStatus)

	updated, err := payments.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentStatusCompleted, updated.Status)
}

func TestProcess_TransientFailureSchedulesRetry(t *testing.T) {
	provider := testProviderForWebhook("stripe")
	providers := &fakeProviderRepo{byName: map[string]*entities.Provider{"stripe": provider}}
	webhooks := newFakeWebhookRepo()
	payments := newFakePaymentRepoWH()
	refunds := newFakeRefundRepoWH()

	factory := adapter.NewFactory()
	factory.Register("stripe", func(creds map[string]string, baseURL string) (adapter.Adapter, error) {
		return &stubWebhookAdapter{name: "stripe", verifyFn: func(headers map[string]string, body []byte, ip string) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{ProviderEventID: "evt_2", ProviderTransactionID: "unknown_pt"}, nil
		}}, nil
	})

	p := newTestProcessor(providers, webhooks, payments, refunds, factory)

	event := &entities.WebhookEvent{
		ID:               uuid.New(),
		ProviderID:       provider.ID,
		ProviderEventID:  "evt_2",
		RawPayload:       "{}",
		ProcessingStatus: entities.WebhookStatusPending,
	}
	require.NoError(t, webhooks.Create(context.Background(), event))

	err := p.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, entities.WebhookStatusFailed, event.ProcessingStatus)
	assert.Equal(t, 1, event.ProcessingAttempts)
	require.NotNil(t, event.NextRetryAt)
}

func TestProcess_GivesUpAfterMaxAttempts(t *testing.T) {
	provider := testProviderForWebhook("stripe")
	providers := &fakeProviderRepo{byName: map[string]*entities.Provider{"stripe": provider}}
	webhooks := newFakeWebhookRepo()
	payments := newFakePaymentRepoWH()
	refunds := newFakeRefundRepoWH()

	factory := adapter.NewFactory()
	factory.Register("stripe", func(creds map[string]string, baseURL string) (adapter.Adapter, error) {
		return &stubWebhookAdapter{name: "stripe", verifyFn: func(headers map[string]string, body []byte, ip string) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{ProviderEventID: "evt_3", ProviderTransactionID: "unknown_pt"}, nil
		}}, nil
	})

	p := newTestProcessor(providers, webhooks, payments, refunds, factory)

	event := &entities.WebhookEvent{
		ID:                 uuid.New(),
		ProviderID:         provider.ID,
		ProviderEventID:    "evt_3",
		RawPayload:         "{}",
		ProcessingStatus:   entities.WebhookStatusPending,
		ProcessingAttempts: entities.MaxWebhookAttempts - 1,
	}
	require.NoError(t, webhooks.Create(context.Background(), event))

	err := p.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, entities.WebhookStatusFailed, event.ProcessingStatus)
	assert.Nil(t, event.NextRetryAt)
	assert.Equal(t, entities.MaxWebhookAttempts, event.ProcessingAttempts)
}

func TestProcess_RecordsCompletedOutcomeMetric(t *testing.T) {
	provider := testProviderForWebhook("stripe")
	providers := &fakeProviderRepo{byName: map[string]*entities.Provider{"stripe": provider}}
	webhooks := newFakeWebhookRepo()
	payments := newFakePaymentRepoWH()
	refunds := newFakeRefundRepoWH()

	payment := &entities.PaymentTransaction{
		ID:                    uuid.New(),
		Amount:                decimal.NewFromInt(100),
		Currency:              "USD",
		Status:                entities.PaymentStatusProcessing,
		ProviderTransactionID: null.StringFrom("pt_999"),
	}
	require.NoError(t, payments.Create(context.Background(), payment))

	factory := adapter.NewFactory()
	factory.Register("stripe", func(creds map[string]string, baseURL string) (adapter.Adapter, error) {
		return &stubWebhookAdapter{name: "stripe", verifyFn: func(headers map[string]string, body []byte, ip string) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{
				ProviderEventID:       "evt_metrics",
				ProviderTransactionID: "pt_999",
				Status:                entities.PaymentStatusCompleted,
			}, nil
		}}, nil
	})

	p := newTestProcessor(providers, webhooks, payments, refunds, factory)
	reg := prometheus.NewRegistry()
	p.WithMetrics(metrics.New(reg))

	event := &entities.WebhookEvent{
		ID:               uuid.New(),
		ProviderID:       provider.ID,
		ProviderEventID:  "evt_metrics",
		RawPayload:       "{}",
		ProcessingStatus: entities.WebhookStatusPending,
	}
	require.NoError(t, webhooks.Create(context.Background(), event))

	require.NoError(t, p.Process(context.Background(), event))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.WebhookOutcomes.WithLabelValues("completed")))
}
