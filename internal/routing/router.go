// Package routing implements the C6 provider selection rules: preferred
// provider first, otherwise the highest-priority ACTIVE provider for the
// currency whose circuit breaker is not open.
package routing

import (
	"context"
	"sort"

	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
	domainrepos "paygate.backend/internal/domain/repositories"
)

// BreakerChecker reports whether calls to a (provider, region) pair are
// currently short-circuited. *resilience.Pipeline satisfies this.
type BreakerChecker interface {
	IsOpen(provider, region string) bool
}

// Router selects a Provider for an incoming payment given its currency and
// an optional caller preference.
type Router struct {
	registry domainrepos.ProviderRepository
	breakers BreakerChecker
}

// New builds a Router. breakers may be nil, in which case breaker state is
// never consulted (every ACTIVE provider is considered eligible).
func New(registry domainrepos.ProviderRepository, breakers BreakerChecker) *Router {
	return &Router{registry: registry, breakers: breakers}
}

// SelectProvider implements spec.md's three-rule algorithm:
//  1. If preferred names an ACTIVE provider supporting currency, return it.
//  2. Otherwise return the first (lowest-priority-number, then
//     lexicographically-first-by-name) entry of ListActiveByCurrency whose
//     breaker is not open.
//  3. If none qualify, fail with NoEligibleProvider.
func (r *Router) SelectProvider(ctx context.Context, currency string, preferred *string) (*entities.Provider, error) {
	if preferred != nil && *preferred != "" {
		provider, err := r.registry.GetByName(ctx, *preferred)
		if err == nil && provider.Status == entities.ProviderStatusActive && provider.SupportedCurrencies.Contains(currency) {
			return provider, nil
		}
	}

	candidates, err := r.registry.ListActiveByCurrency(ctx, currency)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Name < candidates[j].Name
	})

	for _, provider := range candidates {
		if r.breakerOpen(provider) {
			continue
		}
		return provider, nil
	}

	return nil, domainerrors.NoEligibleProvider(currency)
}

func (r *Router) breakerOpen(provider *entities.Provider) bool {
	if r.breakers == nil {
		return false
	}
	return r.breakers.IsOpen(provider.Name, provider.DefaultRegion().Region)
}
