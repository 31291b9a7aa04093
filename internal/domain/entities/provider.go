package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderStatus is the lifecycle state of a Provider row.
type ProviderStatus string

const (
	ProviderStatusActive      ProviderStatus = "ACTIVE"
	ProviderStatusDisabled    ProviderStatus = "DISABLED"
	ProviderStatusDegraded    ProviderStatus = "DEGRADED"
	ProviderStatusMaintenance ProviderStatus = "MAINTENANCE"
)

// Provider is an external payment provider (Stripe, PayPal, Omise, SCB, ...).
type Provider struct {
	ID                  uuid.UUID              `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name                string                 `json:"name" gorm:"uniqueIndex:idx_providers_name_active,where:deleted_at IS NULL;not null"`
	DisplayName         string                 `json:"displayName"`
	Status              ProviderStatus         `json:"status" gorm:"not null;default:'ACTIVE'"`
	SupportedCurrencies StringSet              `json:"supportedCurrencies" gorm:"type:jsonb;serializer:json"`
	Priority            int                    `json:"priority" gorm:"default:100"`
	Credentials         map[string]string      `json:"-" gorm:"type:jsonb;serializer:json"`
	Configurations      []ProviderConfiguration `json:"configurations,omitempty" gorm:"foreignKey:ProviderID"`
	RowVersion          int64                  `json:"-" gorm:"default:1"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
	DeletedAt           gorm.DeletedAt         `json:"-" gorm:"index"`
}

func (Provider) TableName() string { return "providers" }

// StringSet is a set of strings (e.g. ISO-4217 currency codes) persisted as a JSON array.
type StringSet []string

// Contains reports whether s is a member of the set (exact, case-sensitive match).
func (set StringSet) Contains(s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ProviderConfiguration is a regional endpoint/override for a Provider.
type ProviderConfiguration struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProviderID uuid.UUID `json:"providerId" gorm:"index;not null"`
	Region     string    `json:"region" gorm:"not null"`
	BaseURL    string    `json:"baseUrl" gorm:"not null"`
	Active     bool      `json:"active" gorm:"default:true"`
	MaxRetries int       `json:"maxRetries" gorm:"default:3"`
	Timeout    time.Duration `json:"timeout" gorm:"default:30000000000"` // 30s in ns
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (ProviderConfiguration) TableName() string { return "provider_configurations" }

// SafeCopy returns a copy of the provider with credentials elided, for API responses.
func (p *Provider) SafeCopy() *Provider {
	cp := *p
	cp.Credentials = nil
	return &cp
}

// DefaultRegion returns the configuration that should be used when the caller
// does not request a specific region: the first active entry, or a zero-value
// fallback when none is configured.
func (p *Provider) DefaultRegion() ProviderConfiguration {
	for _, cfg := range p.Configurations {
		if cfg.Active {
			return cfg
		}
	}
	return ProviderConfiguration{ProviderID: p.ID, MaxRetries: 3, Timeout: 30 * time.Second}
}
