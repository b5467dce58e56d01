package customers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
)

func setupCustomersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE customers (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  shop_id INTEGER NOT NULL UNIQUE,
  email TEXT,
  first_name TEXT,
  last_name TEXT,
  total_spent NUMERIC,
  orders_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func TestUpsertCreatesWithDefaults(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)

	// sparse payload: only the id is known
	require.NoError(t, repo.Upsert(context.Background(), uuid.New(), shopify.Customer{ID: 501}))

	var stored models.Customer
	require.NoError(t, db.Where("shop_id = ?", 501).First(&stored).Error)
	assert.Nil(t, stored.Email)
	assert.Nil(t, stored.FirstName)
	assert.False(t, stored.TotalSpent.Valid)
	assert.Equal(t, 0, stored.OrdersCount)
}

func TestUpsertLeavesAbsentFieldsUntouched(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	full := shopify.Customer{
		ID:          501,
		Email:       strPtr("jo@example.com"),
		FirstName:   strPtr("Jo"),
		LastName:    strPtr("Smith"),
		TotalSpent:  "120.50",
		OrdersCount: intPtr(3),
	}
	require.NoError(t, repo.Upsert(ctx, tenantID, full))

	// a later sparse payload must not blank out what we already know,
	// the orders count included
	sparse := shopify.Customer{ID: 501}
	require.NoError(t, repo.Upsert(ctx, tenantID, sparse))

	var stored models.Customer
	require.NoError(t, db.Where("shop_id = ?", 501).First(&stored).Error)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "jo@example.com", *stored.Email)
	require.NotNil(t, stored.FirstName)
	assert.Equal(t, "Jo", *stored.FirstName)
	require.True(t, stored.TotalSpent.Valid)
	assert.Equal(t, "120.5", stored.TotalSpent.Decimal.String())
	assert.Equal(t, 3, stored.OrdersCount)

	// a payload that does carry the count updates it
	require.NoError(t, repo.Upsert(ctx, tenantID, shopify.Customer{ID: 501, OrdersCount: intPtr(4)}))
	require.NoError(t, db.Where("shop_id = ?", 501).First(&stored).Error)
	assert.Equal(t, 4, stored.OrdersCount)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "jo@example.com", *stored.Email)
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	page := []shopify.Customer{
		{ID: 501, Email: strPtr("a@example.com"), TotalSpent: "10.00"},
		{ID: 502, Email: strPtr("b@example.com"), TotalSpent: "20.00"},
	}
	require.NoError(t, repo.UpsertBatch(ctx, tenantID, page))
	require.NoError(t, repo.UpsertBatch(ctx, tenantID, page))

	count, err := repo.CountForTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUpsertRejectsMalformedTotalSpent(t *testing.T) {
	repo := NewRepository(setupCustomersTestDB(t))
	err := repo.Upsert(context.Background(), uuid.New(), shopify.Customer{ID: 9, TotalSpent: "abc"})
	require.Error(t, err)
}
