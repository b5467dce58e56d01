package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is an order line snapshot. The set for an order always mirrors the
// latest fetched payload exactly: every order upsert deletes and recreates
// them, never merges. ProductShopID is a value reference, same as
// Order.CustomerShopID.
type LineItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	ShopID        *int64              `gorm:"column:shop_id"`
	ProductShopID *int64              `gorm:"column:product_shop_id"`
	Title         *string             `gorm:"column:title"`
	Quantity      int                 `gorm:"column:quantity;not null;default:0"`
	Price         decimal.NullDecimal `gorm:"column:price;type:numeric(12,2)"`
	TotalDiscount decimal.NullDecimal `gorm:"column:total_discount;type:numeric(12,2)"`
	SKU           *string             `gorm:"column:sku"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}
