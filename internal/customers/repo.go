package customers

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

// Repository persists the customer mirror.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Upsert inserts or refreshes one customer keyed by its Shopify id. Fields
// absent from the payload are left untouched on update; on create they land
// as NULL (and zero for the orders count).
func (r *Repository) Upsert(ctx context.Context, tenantID uuid.UUID, customer shopify.Customer) error {
	totalSpent, err := types.ParseMoney(customer.TotalSpent)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing customer total_spent")
	}

	row := models.Customer{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ShopID:     customer.ID,
		Email:      customer.Email,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		TotalSpent: totalSpent,
	}
	if customer.OrdersCount != nil {
		row.OrdersCount = *customer.OrdersCount
	}

	assignments := map[string]any{
		"tenant_id":  tenantID,
		"updated_at": time.Now().UTC(),
	}
	if customer.OrdersCount != nil {
		assignments["orders_count"] = *customer.OrdersCount
	}
	if customer.Email != nil {
		assignments["email"] = *customer.Email
	}
	if customer.FirstName != nil {
		assignments["first_name"] = *customer.FirstName
	}
	if customer.LastName != nil {
		assignments["last_name"] = *customer.LastName
	}
	if totalSpent.Valid {
		assignments["total_spent"] = totalSpent
	}

	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
}

// UpsertBatch applies Upsert over a page of customers.
func (r *Repository) UpsertBatch(ctx context.Context, tenantID uuid.UUID, page []shopify.Customer) error {
	for _, customer := range page {
		if err := r.Upsert(ctx, tenantID, customer); err != nil {
			return err
		}
	}
	return nil
}

// CountForTenant reports how many customers a tenant has mirrored.
func (r *Repository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Customer{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
