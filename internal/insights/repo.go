package insights

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shoplytics/shoplytics-backend/internal/repo"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
)

// Repository runs the aggregate queries behind the insight endpoints.
type Repository struct {
	repo.Base
	dialect string
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db), dialect: db.Dialector.Name()}
}

// dayExpr formats processed_at as a YYYY-MM-DD bucket. The expression
// differs per dialect so the repository tests can run on sqlite.
func (r *Repository) dayExpr() string {
	if r.dialect == "sqlite" {
		return "strftime('%Y-%m-%d', processed_at)"
	}
	return "to_char(processed_at, 'YYYY-MM-DD')"
}

// Totals is the tenant-wide headline aggregate.
type Totals struct {
	Customers int64           `json:"customers"`
	Orders    int64           `json:"orders"`
	Revenue   decimal.Decimal `json:"revenue"`
}

func (r *Repository) Totals(ctx context.Context, tenantID uuid.UUID) (*Totals, error) {
	var totals Totals

	if err := r.DB(ctx).Model(&models.Customer{}).
		Where("tenant_id = ?", tenantID).
		Count(&totals.Customers).Error; err != nil {
		return nil, err
	}
	if err := r.DB(ctx).Model(&models.Order{}).
		Where("tenant_id = ?", tenantID).
		Count(&totals.Orders).Error; err != nil {
		return nil, err
	}

	var revenue struct {
		Revenue decimal.NullDecimal
	}
	if err := r.DB(ctx).Model(&models.Order{}).
		Select("COALESCE(SUM(total_price), 0) AS revenue").
		Where("tenant_id = ?", tenantID).
		Scan(&revenue).Error; err != nil {
		return nil, err
	}
	if revenue.Revenue.Valid {
		totals.Revenue = revenue.Revenue.Decimal
	}
	return &totals, nil
}

// DailyOrders is one day's bucket of orders and revenue.
type DailyOrders struct {
	Day     string          `json:"day"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

func (r *Repository) OrdersByDate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]DailyOrders, error) {
	rows := []DailyOrders{}
	err := r.DB(ctx).Model(&models.Order{}).
		Select(r.dayExpr()+" AS day, COUNT(*) AS orders, COALESCE(SUM(total_price), 0) AS revenue").
		Where("tenant_id = ? AND processed_at BETWEEN ? AND ?", tenantID, from, to).
		Group(r.dayExpr()).
		Order("1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CustomerSpend ranks a customer by the revenue of their mirrored orders.
type CustomerSpend struct {
	CustomerShopID int64           `json:"customerShopId"`
	Email          *string         `json:"email"`
	FirstName      *string         `json:"firstName"`
	LastName       *string         `json:"lastName"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
}

func (r *Repository) TopCustomers(ctx context.Context, tenantID uuid.UUID, limit int) ([]CustomerSpend, error) {
	rows := []CustomerSpend{}
	err := r.DB(ctx).Raw(`
SELECT c.shop_id AS customer_shop_id,
       c.email,
       c.first_name,
       c.last_name,
       COALESCE(SUM(o.total_price), 0) AS total_spent
FROM customers c
LEFT JOIN orders o
  ON o.tenant_id = c.tenant_id
 AND o.customer_shop_id = c.shop_id
WHERE c.tenant_id = ?
GROUP BY c.shop_id, c.email, c.first_name, c.last_name
ORDER BY total_spent DESC
LIMIT ?`, tenantID, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ProductSales ranks a product by line item revenue.
type ProductSales struct {
	ProductShopID int64           `json:"productShopId"`
	Title         string          `json:"title"`
	Revenue       decimal.Decimal `json:"revenue"`
	Quantity      int64           `json:"quantity"`
	Orders        int64           `json:"orders"`
}

func (r *Repository) TopProducts(ctx context.Context, tenantID uuid.UUID, limit int) ([]ProductSales, error) {
	rows := []ProductSales{}
	err := r.DB(ctx).Raw(`
SELECT p.shop_id AS product_shop_id,
       p.title,
       COALESCE(SUM(li.price * li.quantity), 0) AS revenue,
       COALESCE(SUM(li.quantity), 0) AS quantity,
       COUNT(DISTINCT o.id) AS orders
FROM products p
LEFT JOIN line_items li ON li.product_shop_id = p.shop_id
LEFT JOIN orders o ON o.id = li.order_id AND o.tenant_id = p.tenant_id
WHERE p.tenant_id = ?
GROUP BY p.shop_id, p.title
HAVING COALESCE(SUM(li.price * li.quantity), 0) > 0
ORDER BY revenue DESC
LIMIT ?`, tenantID, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentOrder is one row of the latest-orders listing.
type RecentOrder struct {
	OrderShopID     int64           `json:"orderId"`
	Name            *string         `json:"name"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	FinancialStatus *string         `json:"financialStatus"`
	ProcessedAt     *time.Time      `json:"processedAt"`
}

func (r *Repository) RecentOrders(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]RecentOrder, int64, error) {
	var total int64
	if err := r.DB(ctx).Model(&models.Order{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := []RecentOrder{}
	err := r.DB(ctx).Model(&models.Order{}).
		Select("shop_id AS order_shop_id, name, total_price, financial_status, processed_at").
		Where("tenant_id = ?", tenantID).
		Order("processed_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
