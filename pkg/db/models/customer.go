package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer mirrors a Shopify customer. ShopID shares the same global
// uniqueness caveat as Product.ShopID. TotalSpent is Shopify-reported, never
// recomputed from local orders.
type Customer struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	ShopID      int64               `gorm:"column:shop_id;not null;uniqueIndex"`
	Email       *string             `gorm:"column:email"`
	FirstName   *string             `gorm:"column:first_name"`
	LastName    *string             `gorm:"column:last_name"`
	TotalSpent  decimal.NullDecimal `gorm:"column:total_spent;type:numeric(12,2)"`
	OrdersCount int                 `gorm:"column:orders_count;not null;default:0"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
