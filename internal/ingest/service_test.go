package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

func setupIngestTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE tenants (
  id TEXT PRIMARY KEY,
  tenant_key TEXT NOT NULL UNIQUE,
  shop_domain TEXT NOT NULL UNIQUE,
  access_token TEXT NOT NULL,
  scopes TEXT NOT NULL DEFAULT '{}',
  shop_name TEXT,
  email TEXT,
  currency TEXT,
  timezone TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  products_cursor DATETIME,
  customers_cursor DATETIME,
  orders_cursor DATETIME,
  uninstalled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  shop_id INTEGER NOT NULL UNIQUE,
  title TEXT NOT NULL,
  status TEXT,
  price_min NUMERIC,
  price_max NUMERIC,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE customers (
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
);`,
		`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  shop_id INTEGER NOT NULL,
  customer_shop_id INTEGER,
  name TEXT,
  currency TEXT,
  financial_status TEXT,
  fulfillment_status TEXT,
  total_price NUMERIC NOT NULL DEFAULT 0,
  subtotal_price NUMERIC,
  total_tax NUMERIC,
  total_discount NUMERIC,
  processed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (tenant_id, shop_id)
);`,
		`CREATE TABLE line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  shop_id INTEGER,
  product_shop_id INTEGER,
  title TEXT,
  quantity INTEGER NOT NULL DEFAULT 0,
  price NUMERIC,
  total_discount NUMERIC,
  sku TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

// fakeShopify serves one page per collection and records the filters it saw.
type fakeShopify struct {
	mu           sync.Mutex
	updatedAtMin map[string]string
	createdAtMin map[string]string
	failOrders   bool
}

func (f *fakeShopify) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.updatedAtMin[r.URL.Path] = r.URL.Query().Get("updated_at_min")
		f.createdAtMin[r.URL.Path] = r.URL.Query().Get("created_at_min")
		failOrders := f.failOrders
		f.mu.Unlock()

		switch r.URL.Path {
		case "/admin/api/2024-10/products.json":
			w.Write([]byte(`{"products":[{"id":1001,"title":"Widget","status":"active","variants":[{"id":1,"price":"19.99"}]}]}`))
		case "/admin/api/2024-10/customers.json":
			w.Write([]byte(`{"customers":[{"id":501,"email":"jo@example.com","total_spent":"120.50","orders_count":3}]}`))
		case "/admin/api/2024-10/orders.json":
			if failOrders {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"orders":[{"id":7001,"name":"#1001","total_price":"19.99","customer":{"id":501},"line_items":[{"id":1,"title":"Widget","quantity":1,"price":"19.99"}]}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
}

type ingestFixture struct {
	service *Service
	tenants *tenants.Repository
	tenant  *models.Tenant
	db      *gorm.DB
	fake    *fakeShopify
}

func setupIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	fake := &fakeShopify{updatedAtMin: map[string]string{}, createdAtMin: map[string]string{}}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	db := setupIngestTestDB(t)
	tenantRepo := tenants.NewRepository(db)
	tenant, err := tenantRepo.UpsertOnInstall(context.Background(), tenants.InstallParams{
		ShopDomain:  "demo.myshopify.com",
		AccessToken: "shpat_token",
	})
	require.NoError(t, err)

	app := shopify.NewApp(config.ShopifyConfig{
		APIKey:     "key",
		APISecret:  "secret",
		APIVersion: "2024-10",
		BaseURL:    server.URL,
	})

	service, err := NewService(ServiceParams{
		App:       app,
		Tenants:   tenantRepo,
		Products:  products.NewRepository(db),
		Customers: customers.NewRepository(db),
		Orders:    orders.NewRepository(db),
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Sync: config.SyncConfig{
			CallDelay:      time.Millisecond,
			MaxAttempts:    2,
			PageSize:       250,
			BackoffBase:    time.Millisecond,
			BackoffCeiling: 2 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	return &ingestFixture{service: service, tenants: tenantRepo, tenant: tenant, db: db, fake: fake}
}

func TestBackfillIngestsEverythingAndSeedsCursors(t *testing.T) {
	fx := setupIngestFixture(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, fx.service.Backfill(ctx, fx.tenant))

	var productCount, customerCount, orderCount, lineCount int64
	require.NoError(t, fx.db.Model(&models.Product{}).Count(&productCount).Error)
	require.NoError(t, fx.db.Model(&models.Customer{}).Count(&customerCount).Error)
	require.NoError(t, fx.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, fx.db.Model(&models.LineItem{}).Count(&lineCount).Error)
	assert.Equal(t, int64(1), productCount)
	assert.Equal(t, int64(1), customerCount)
	assert.Equal(t, int64(1), orderCount)
	assert.Equal(t, int64(1), lineCount)

	// backfill walks everything, no filter applied
	assert.Equal(t, "", fx.fake.updatedAtMin["/admin/api/2024-10/products.json"])

	cursors, err := fx.tenants.GetCursors(ctx, fx.tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, cursors.Products)
	require.NotNil(t, cursors.Customers)
	require.NotNil(t, cursors.Orders)
	assert.False(t, cursors.Products.Before(before))
	assert.True(t, cursors.Products.Equal(*cursors.Orders))
}

func TestSyncOrdersScopesByCreationTime(t *testing.T) {
	fx := setupIngestFixture(t)
	ctx := context.Background()

	since := "2026-02-01T00:00:00Z"
	require.NoError(t, fx.service.SyncOrders(ctx, fx.tenant, since))

	assert.Equal(t, since, fx.fake.createdAtMin["/admin/api/2024-10/orders.json"])
	assert.Equal(t, "", fx.fake.updatedAtMin["/admin/api/2024-10/orders.json"])
}

func TestDeltaSyncFiltersByCursorAndAdvancesTogether(t *testing.T) {
	fx := setupIngestFixture(t)
	ctx := context.Background()

	seed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fx.tenants.SetCursors(ctx, fx.tenant.ID, tenants.Cursors{
		Products:  &seed,
		Customers: &seed,
		Orders:    &seed,
	}))

	require.NoError(t, fx.service.DeltaSync(ctx, fx.tenant))

	want := "2026-02-01T00:00:00Z"
	assert.Equal(t, want, fx.fake.updatedAtMin["/admin/api/2024-10/products.json"])
	assert.Equal(t, want, fx.fake.updatedAtMin["/admin/api/2024-10/customers.json"])
	assert.Equal(t, want, fx.fake.updatedAtMin["/admin/api/2024-10/orders.json"])
	assert.Equal(t, "", fx.fake.createdAtMin["/admin/api/2024-10/orders.json"])

	cursors, err := fx.tenants.GetCursors(ctx, fx.tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, cursors.Products)
	assert.True(t, cursors.Products.After(seed))
	assert.True(t, cursors.Products.Equal(*cursors.Customers))
	assert.True(t, cursors.Products.Equal(*cursors.Orders))
}

func TestDeltaSyncLeavesCursorsOnFailure(t *testing.T) {
	fx := setupIngestFixture(t)
	ctx := context.Background()

	seed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fx.tenants.SetCursors(ctx, fx.tenant.ID, tenants.Cursors{
		Products:  &seed,
		Customers: &seed,
		Orders:    &seed,
	}))

	fx.fake.mu.Lock()
	fx.fake.failOrders = true
	fx.fake.mu.Unlock()

	require.Error(t, fx.service.DeltaSync(ctx, fx.tenant))

	// products and customers landed but no cursor moved
	cursors, err := fx.tenants.GetCursors(ctx, fx.tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, cursors.Products)
	assert.True(t, cursors.Products.Equal(seed))
	assert.True(t, cursors.Orders.Equal(seed))

	var productCount int64
	require.NoError(t, fx.db.Model(&models.Product{}).Count(&productCount).Error)
	assert.Equal(t, int64(1), productCount)
}
