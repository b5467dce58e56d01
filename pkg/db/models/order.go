package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order mirrors a Shopify order, keyed by (tenant_id, shop_id).
// CustomerShopID is a value reference to Customer.ShopID, not an enforced
// foreign key: products, customers and orders paginate independently, so an
// order can land before its customer has been ingested.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID          uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_orders_tenant_shop"`
	ShopID            int64               `gorm:"column:shop_id;not null;uniqueIndex:idx_orders_tenant_shop"`
	CustomerShopID    *int64              `gorm:"column:customer_shop_id"`
	Name              *string             `gorm:"column:name"`
	Currency          *string             `gorm:"column:currency"`
	FinancialStatus   *string             `gorm:"column:financial_status"`
	FulfillmentStatus *string             `gorm:"column:fulfillment_status"`
	TotalPrice        decimal.Decimal     `gorm:"column:total_price;type:numeric(12,2);not null;default:0"`
	SubtotalPrice     decimal.NullDecimal `gorm:"column:subtotal_price;type:numeric(12,2)"`
	TotalTax          decimal.NullDecimal `gorm:"column:total_tax;type:numeric(12,2)"`
	TotalDiscount     decimal.NullDecimal `gorm:"column:total_discount;type:numeric(12,2)"`
	ProcessedAt       *time.Time          `gorm:"column:processed_at;index"`
	LineItems         []LineItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
