package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant is one installed Shopify store, the unit of data isolation.
// AccessToken is only ever written on a successful OAuth code exchange; an
// uninstall flips Status to suspended but leaves the token in place.
type Tenant struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantKey   string         `gorm:"column:tenant_key;not null;uniqueIndex"`
	ShopDomain  string         `gorm:"column:shop_domain;not null;uniqueIndex"`
	AccessToken string         `gorm:"column:access_token;not null"`
	Scopes      pq.StringArray `gorm:"column:scopes;type:text[];not null;default:ARRAY[]::text[]"`
	ShopName    *string        `gorm:"column:shop_name"`
	Email       *string        `gorm:"column:email"`
	Currency    *string        `gorm:"column:currency"`
	Timezone    *string        `gorm:"column:timezone"`
	Status      string         `gorm:"column:status;not null;default:'active'"`

	// Delta-sync watermarks. Advanced together, forward only, and only after
	// a fully successful pass over all three entity types.
	ProductsCursor  *time.Time `gorm:"column:products_cursor"`
	CustomersCursor *time.Time `gorm:"column:customers_cursor"`
	OrdersCursor    *time.Time `gorm:"column:orders_cursor"`

	UninstalledAt *time.Time `gorm:"column:uninstalled_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsActive reports whether the tenant may be served and synced.
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == TenantStatusActive
}
