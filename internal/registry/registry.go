// Package registry provides the C2 provider directory: GORM-backed storage
// of Provider rows, fronted by a short-TTL cache so the hot payment path
// does not hit the database on every request.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"paygate.backend/internal/domain/entities"
	domainrepos "paygate.backend/internal/domain/repositories"
	"paygate.backend/internal/vault"
)

// defaultTTL is how long a cached provider snapshot is trusted before the
// registry re-reads it from the database.
const defaultTTL = 60 * time.Second

var _ domainrepos.ProviderRepository = (*CachedRegistry)(nil)

// CachedRegistry wraps a ProviderRepository with an in-memory, TTL-bounded
// cache. Writes (Register, Update, UpdateStatus, Delete) go straight to the
// repository and invalidate the cache so readers never observe a stale
// write they themselves issued.
type CachedRegistry struct {
	repo  domainrepos.ProviderRepository
	ttl   time.Duration
	vault vault.Vault

	mu          sync.RWMutex
	byID        map[uuid.UUID]*cacheEntry
	byName      map[string]*cacheEntry
	allAt       time.Time
	allCache    []*entities.Provider
	byCurrency  map[string]*activeByCurrencyEntry
}

type cacheEntry struct {
	provider *entities.Provider
	at       time.Time
}

type activeByCurrencyEntry struct {
	providers []*entities.Provider
	at        time.Time
}

// New builds a CachedRegistry over repo using the default TTL. Credentials
// are persisted as given; use NewWithVault to encrypt them at rest.
func New(repo domainrepos.ProviderRepository) *CachedRegistry {
	return NewWithTTL(repo, defaultTTL)
}

// NewWithVault builds a CachedRegistry that encrypts Provider.Credentials
// through v, scoped per provider name, before every Register/Update.
func NewWithVault(repo domainrepos.ProviderRepository, v vault.Vault) *CachedRegistry {
	r := NewWithTTL(repo, defaultTTL)
	r.vault = v
	return r
}

// NewWithTTL builds a CachedRegistry with a caller-supplied TTL, used by
// tests that want to exercise cache expiry deterministically.
func NewWithTTL(repo domainrepos.ProviderRepository, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		repo:       repo,
		ttl:        ttl,
		byID:       make(map[uuid.UUID]*cacheEntry),
		byName:     make(map[string]*cacheEntry),
		byCurrency: make(map[string]*activeByCurrencyEntry),
	}
}

// Register creates a new provider and invalidates the list cache. Credential
// values pass through the vault before the row reaches the repository.
func (r *CachedRegistry) Register(ctx context.Context, provider *entities.Provider) error {
	if err := r.encryptCredentials(provider); err != nil {
		return err
	}
	if err := r.repo.Register(ctx, provider); err != nil {
		return err
	}
	r.invalidateAll()
	return nil
}

// ListAll returns every provider, served from cache when fresh.
func (r *CachedRegistry) ListAll(ctx context.Context) ([]*entities.Provider, error) {
	r.mu.RLock()
	if r.allCache != nil && time.Since(r.allAt) < r.ttl {
		defer r.mu.RUnlock()
		return r.allCache, nil
	}
	r.mu.RUnlock()

	providers, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.allCache = providers
	r.allAt = time.Now()
	r.mu.Unlock()

	return providers, nil
}

// GetByID returns one provider, served from cache when fresh.
func (r *CachedRegistry) GetByID(ctx context.Context, id uuid.UUID) (*entities.Provider, error) {
	r.mu.RLock()
	entry, ok := r.byID[id]
	r.mu.RUnlock()
	if ok && time.Since(entry.at) < r.ttl {
		return entry.provider, nil
	}

	provider, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byID[id] = &cacheEntry{provider: provider, at: time.Now()}
	r.mu.Unlock()

	return provider, nil
}

// GetByName returns one provider by name, served from cache when fresh.
func (r *CachedRegistry) GetByName(ctx context.Context, name string) (*entities.Provider, error) {
	r.mu.RLock()
	entry, ok := r.byName[name]
	r.mu.RUnlock()
	if ok && time.Since(entry.at) < r.ttl {
		return entry.provider, nil
	}

	provider, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byName[name] = &cacheEntry{provider: provider, at: time.Now()}
	r.mu.Unlock()

	return provider, nil
}

// ListActiveByCurrency is the hot path the routing engine calls on every
// payment request; served from cache when fresh, per spec. Circuit-breaker
// state is consulted separately by the router and is not part of this
// cache, so breaker trips are still observed immediately regardless of TTL.
func (r *CachedRegistry) ListActiveByCurrency(ctx context.Context, currency string) ([]*entities.Provider, error) {
	r.mu.RLock()
	entry, ok := r.byCurrency[currency]
	r.mu.RUnlock()
	if ok && time.Since(entry.at) < r.ttl {
		return entry.providers, nil
	}

	providers, err := r.repo.ListActiveByCurrency(ctx, currency)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byCurrency[currency] = &activeByCurrencyEntry{providers: providers, at: time.Now()}
	r.mu.Unlock()

	return providers, nil
}

// Update persists provider and invalidates every cache entry that might
// reference its old value. Credential values pass through the vault again,
// since a caller sends plaintext credentials on every update.
func (r *CachedRegistry) Update(ctx context.Context, provider *entities.Provider) error {
	if err := r.encryptCredentials(provider); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, provider); err != nil {
		return err
	}
	r.invalidate(provider.ID, provider.Name)
	return nil
}

// encryptCredentials replaces provider.Credentials in place with vault
// ciphertext, scoped to the provider's name. A no-op when no vault is
// configured (dev/test mode).
func (r *CachedRegistry) encryptCredentials(provider *entities.Provider) error {
	if r.vault == nil || len(provider.Credentials) == 0 {
		return nil
	}
	scoped := r.vault.Scoped(provider.Name)
	sealed := make(map[string]string, len(provider.Credentials))
	for k, plaintext := range provider.Credentials {
		ciphertext, err := scoped.Encrypt([]byte(plaintext))
		if err != nil {
			return err
		}
		sealed[k] = ciphertext
	}
	provider.Credentials = sealed
	return nil
}

// UpdateStatus flips status and invalidates the cached entry for id.
func (r *CachedRegistry) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.ProviderStatus) error {
	if err := r.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byID, id)
	for name, e := range r.byName {
		if e.provider.ID == id {
			delete(r.byName, name)
		}
	}
	r.allCache = nil
	r.byCurrency = make(map[string]*activeByCurrencyEntry)
	r.mu.Unlock()
	return nil
}

// Delete removes a provider and invalidates its cache entries.
func (r *CachedRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byID, id)
	for name, e := range r.byName {
		if e.provider.ID == id {
			delete(r.byName, name)
		}
	}
	r.allCache = nil
	r.byCurrency = make(map[string]*activeByCurrencyEntry)
	r.mu.Unlock()
	return nil
}

func (r *CachedRegistry) invalidate(id uuid.UUID, name string) {
	r.mu.Lock()
	delete(r.byID, id)
	delete(r.byName, name)
	r.allCache = nil
	r.byCurrency = make(map[string]*activeByCurrencyEntry)
	r.mu.Unlock()
}

func (r *CachedRegistry) invalidateAll() {
	r.mu.Lock()
	r.byID = make(map[uuid.UUID]*cacheEntry)
	r.byName = make(map[string]*cacheEntry)
	r.allCache = nil
	r.byCurrency = make(map[string]*activeByCurrencyEntry)
	r.mu.Unlock()
}
