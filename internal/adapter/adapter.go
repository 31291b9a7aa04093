// Package adapter defines the C3 provider adapter boundary: one
// implementation per external payment provider, selected by a factory keyed
// on Provider.Name.
package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"paygate.backend/internal/domain/entities"
	"paygate.backend/internal/vault"
)

// AuthorizeRequest is what the orchestrator hands to an adapter to start a
// payment against the provider.
type AuthorizeRequest struct {
	PaymentID   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
	Metadata    map[string]string
}

// AuthorizeResult is the provider's response to an authorize call.
type AuthorizeResult struct {
	ProviderTransactionID string
	PaymentURL            string
	Status                entities.PaymentStatus
}

// StatusResult reports a provider's current view of a transaction.
type StatusResult struct {
	Status            entities.PaymentStatus
	ProviderErrorCode string
	ErrorMessage      string
}

// RefundRequest is what the orchestrator hands to an adapter to refund a
// previously authorized transaction.
type RefundRequest struct {
	ProviderTransactionID string
	Amount                decimal.Decimal
	Currency              string
	Reason                string
}

// RefundResult is the provider's response to a refund call.
type RefundResult struct {
	ProviderRefundID string
	Status           entities.RefundStatus
}

// WebhookEvent is the provider-agnostic shape an adapter parses a raw
// webhook body into, once its signature has been verified.
type WebhookEvent struct {
	ProviderEventID       string
	EventType             string
	ProviderTransactionID string
	ProviderRefundID      string
	Status                entities.PaymentStatus
	RefundStatus          entities.RefundStatus
	IsRefundEvent         bool
}

// Adapter is the uniform surface the resilience pipeline and orchestrators
// drive against, regardless of which concrete provider handles the call.
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	GetStatus(ctx context.Context, providerTransactionID string) (*StatusResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// VerifyWebhook checks the authenticity of a raw webhook delivery and,
	// if valid, parses it into a provider-agnostic WebhookEvent.
	VerifyWebhook(headers map[string]string, body []byte, sourceIP string) (*WebhookEvent, error)
}

// Factory lazily constructs and caches one Adapter instance per provider
// name, mirroring the double-checked-lock cache the blockchain client
// factory used for per-RPC-URL clients.
type Factory struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	builders map[string]func(credentials map[string]string, baseURL string) (Adapter, error)
	vault    vault.Vault
}

// NewFactory builds a Factory with no vault: Provider.Credentials is passed
// to builders as-is. Used by tests that exercise plaintext fakes.
func NewFactory() *Factory {
	return &Factory{
		adapters: make(map[string]Adapter),
		builders: make(map[string]func(map[string]string, string) (Adapter, error)),
	}
}

// NewFactoryWithVault builds a Factory that decrypts Provider.Credentials
// through v, scoped per provider name, before handing them to a builder.
// The adapter the builder returns keeps the plaintext values it needs and
// stays cached until Invalidate is called for that provider name.
func NewFactoryWithVault(v vault.Vault) *Factory {
	f := NewFactory()
	f.vault = v
	return f
}

// Register adds (or overrides) the builder used for a given provider name.
// Tests use this to inject fakes; production wiring uses it to register the
// stripe/paypal/omise/scb constructors.
func (f *Factory) Register(name string, builder func(credentials map[string]string, baseURL string) (Adapter, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[name] = builder
}

// For returns the cached Adapter for provider, constructing it on first use
// from its credentials and base URL.
func (f *Factory) For(provider *entities.Provider) (Adapter, error) {
	f.mu.RLock()
	a, ok := f.adapters[provider.Name]
	f.mu.RUnlock()
	if ok {
		return a, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.adapters[provider.Name]; ok {
		return a, nil
	}

	builder, ok := f.builders[provider.Name]
	if !ok {
		return nil, fmt.Errorf("adapter: no builder registered for provider %q", provider.Name)
	}

	credentials, err := f.decryptCredentials(provider)
	if err != nil {
		return nil, fmt.Errorf("adapter: decrypt credentials for %q: %w", provider.Name, err)
	}

	region := provider.DefaultRegion()
	newAdapter, err := builder(credentials, region.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("adapter: build %q: %w", provider.Name, err)
	}

	f.adapters[provider.Name] = newAdapter
	return newAdapter, nil
}

// decryptCredentials returns a plaintext copy of provider.Credentials. When
// the factory holds no vault, credentials are assumed already plaintext
// (test/dev mode).
func (f *Factory) decryptCredentials(provider *entities.Provider) (map[string]string, error) {
	if f.vault == nil {
		return provider.Credentials, nil
	}

	scoped := f.vault.Scoped(provider.Name)
	plaintext := make(map[string]string, len(provider.Credentials))
	for k, ciphertext := range provider.Credentials {
		decrypted, err := scoped.Decrypt(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", k, err)
		}
		plaintext[k] = string(decrypted)
	}
	return plaintext, nil
}

// Invalidate drops the cached adapter for name, forcing the next For call to
// rebuild it. Used after an admin rotates a provider's credentials.
func (f *Factory) Invalidate(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.adapters, name)
}
