package products

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shoplytics/shoplytics-backend/internal/repo"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/types"
)

// Repository persists the product mirror.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// variantPriceRange derives the min and max variant price. ok is false when
// the payload carried no variants, in which case the price columns must not
// be touched on update.
func variantPriceRange(variants []shopify.Variant) (min, max decimal.Decimal, ok bool, err error) {
	for _, v := range variants {
		parsed, perr := types.ParseMoney(v.Price)
		if perr != nil {
			return min, max, false, pkgerrors.Wrap(pkgerrors.CodeValidation, perr, "parsing variant price")
		}
		if !parsed.Valid {
			continue
		}
		price := parsed.Decimal
		if !ok {
			min, max, ok = price, price, true
			continue
		}
		if price.LessThan(min) {
			min = price
		}
		if price.GreaterThan(max) {
			max = price
		}
	}
	return min, max, ok, nil
}

// Upsert inserts or refreshes one product keyed by its Shopify id. The
// update path only touches columns present in the payload: a product with no
// variants keeps whatever price range an earlier sync recorded.
func (r *Repository) Upsert(ctx context.Context, tenantID uuid.UUID, product shopify.Product) error {
	priceMin, priceMax, havePrices, err := variantPriceRange(product.Variants)
	if err != nil {
		return err
	}

	row := models.Product{
		ID:       uuid.New(),
		TenantID: tenantID,
		ShopID:   product.ID,
		Title:    product.Title,
	}
	if product.Status != "" {
		status := product.Status
		row.Status = &status
	}
	if havePrices {
		row.PriceMin = types.Money(priceMin)
		row.PriceMax = types.Money(priceMax)
	}

	assignments := map[string]any{
		"tenant_id":  tenantID,
		"title":      product.Title,
		"updated_at": time.Now().UTC(),
	}
	if product.Status != "" {
		assignments["status"] = product.Status
	}
	if havePrices {
		assignments["price_min"] = types.Money(priceMin)
		assignments["price_max"] = types.Money(priceMax)
	}

	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
}

// UpsertBatch applies Upsert over a page of products.
func (r *Repository) UpsertBatch(ctx context.Context, tenantID uuid.UUID, page []shopify.Product) error {
	for _, product := range page {
		if err := r.Upsert(ctx, tenantID, product); err != nil {
			return err
		}
	}
	return nil
}

// CountForTenant reports how many products a tenant has mirrored.
func (r *Repository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Product{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
