package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shoplytics/shoplytics-backend/internal/repo"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/types"
)

// Repository persists the order mirror and its line item snapshots.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Upsert inserts or refreshes one order keyed by (tenant, shopify id) and
// replaces its line items wholesale. Replacement is delete then recreate in
// one transaction: the stored set always mirrors the latest payload exactly,
// removed lines included. Scalar fields absent from the payload are left
// untouched on update.
func (r *Repository) Upsert(ctx context.Context, tenantID uuid.UUID, order shopify.Order) error {
	totalPrice, err := types.ParseMoney(order.TotalPrice)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing order total_price")
	}
	subtotal, err := types.ParseMoney(order.SubtotalPrice)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing order subtotal_price")
	}
	totalTax, err := types.ParseMoney(order.TotalTax)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing order total_tax")
	}
	totalDiscount, err := types.ParseMoney(order.TotalDiscounts)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing order total_discounts")
	}

	row := models.Order{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ShopID:            order.ID,
		Name:              optString(order.Name),
		Currency:          optString(order.Currency),
		FinancialStatus:   optString(order.FinancialStatus),
		FulfillmentStatus: order.FulfillmentStatus,
		SubtotalPrice:     subtotal,
		TotalTax:          totalTax,
		TotalDiscount:     totalDiscount,
		ProcessedAt:       order.ProcessedAt,
	}
	if totalPrice.Valid {
		row.TotalPrice = totalPrice.Decimal
	}
	if order.Customer != nil {
		customerID := order.Customer.ID
		row.CustomerShopID = &customerID
	}

	assignments := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if row.Name != nil {
		assignments["name"] = *row.Name
	}
	if row.Currency != nil {
		assignments["currency"] = *row.Currency
	}
	if row.FinancialStatus != nil {
		assignments["financial_status"] = *row.FinancialStatus
	}
	if row.FulfillmentStatus != nil {
		assignments["fulfillment_status"] = *row.FulfillmentStatus
	}
	if totalPrice.Valid {
		assignments["total_price"] = totalPrice.Decimal
	}
	if subtotal.Valid {
		assignments["subtotal_price"] = subtotal
	}
	if totalTax.Valid {
		assignments["total_tax"] = totalTax
	}
	if totalDiscount.Valid {
		assignments["total_discount"] = totalDiscount
	}
	if order.ProcessedAt != nil {
		assignments["processed_at"] = *order.ProcessedAt
	}
	if row.CustomerShopID != nil {
		assignments["customer_shop_id"] = *row.CustomerShopID
	}

	return r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "shop_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).Create(&row).Error; err != nil {
			return err
		}

		// the conflict path keeps the existing row id, re-read it
		var stored models.Order
		if err := tx.Select("id").
			Where("tenant_id = ? AND shop_id = ?", tenantID, order.ID).
			First(&stored).Error; err != nil {
			return err
		}

		if err := tx.Where("order_id = ?", stored.ID).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}

		if len(order.LineItems) == 0 {
			return nil
		}
		items := make([]models.LineItem, 0, len(order.LineItems))
		for _, li := range order.LineItems {
			price, err := types.ParseMoney(li.Price)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing line item price")
			}
			discount, err := types.ParseMoney(li.TotalDiscount)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing line item total_discount")
			}
			lineShopID := li.ID
			items = append(items, models.LineItem{
				ID:            uuid.New(),
				OrderID:       stored.ID,
				ShopID:        &lineShopID,
				ProductShopID: li.ProductID,
				Title:         optString(li.Title),
				Quantity:      li.Quantity,
				Price:         price,
				TotalDiscount: discount,
				SKU:           li.SKU,
			})
		}
		return tx.Create(&items).Error
	})
}

// UpsertBatch applies Upsert over a page of orders.
func (r *Repository) UpsertBatch(ctx context.Context, tenantID uuid.UUID, page []shopify.Order) error {
	for _, order := range page {
		if err := r.Upsert(ctx, tenantID, order); err != nil {
			return err
		}
	}
	return nil
}

// FindByShopID loads one order with its line items.
func (r *Repository) FindByShopID(ctx context.Context, tenantID uuid.UUID, shopID int64) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).Preload("LineItems").
		Where("tenant_id = ? AND shop_id = ?", tenantID, shopID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CountForTenant reports how many orders a tenant has mirrored.
func (r *Repository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Order{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
