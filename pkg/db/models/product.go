package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product mirrors a Shopify product. ShopID is Shopify's numeric product id
// and is globally unique in the current schema, not per tenant; two stores
// with colliding numeric ids would overwrite each other. Known limitation,
// kept as-is.
type Product struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`
	ShopID   int64     `gorm:"column:shop_id;not null;uniqueIndex"`
	Title    string    `gorm:"column:title;not null"`
	Status   *string   `gorm:"column:status"`

	// Min/max across variants, derived once at ingest time.
	PriceMin decimal.NullDecimal `gorm:"column:price_min;type:numeric(12,2)"`
	PriceMax decimal.NullDecimal `gorm:"column:price_max;type:numeric(12,2)"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
