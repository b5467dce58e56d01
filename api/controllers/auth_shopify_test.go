package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/ingest"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

const installSecret = "shpss_install_secret"

func setupInstallDB(t *testing.T) *gorm.DB {
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

// fakeShopifyInstall mimics the Shopify endpoints touched during an install:
// token exchange, shop profile, webhook registration, and the three
// collection endpoints the backfill walks.
type fakeShopifyInstall struct {
	mu            sync.Mutex
	webhookTopics []string
	tokenCalls    int
	failOrders    bool
}

func (f *fakeShopifyInstall) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/admin/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "shpat_install_token",
			"scope":        "read_products,read_customers,read_orders",
		})
	})

	mux.HandleFunc("/admin/api/2024-10/shop.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"shop": map[string]any{
				"id":            42,
				"name":          "Demo Shop",
				"email":         "owner@demo.test",
				"currency":      "EUR",
				"iana_timezone": "Europe/Berlin",
			},
		})
	})

	mux.HandleFunc("/admin/api/2024-10/webhooks.json", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Webhook struct {
				Topic string `json:"topic"`
			} `json:"webhook"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.webhookTopics = append(f.webhookTopics, payload.Webhook.Topic)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"webhook": map[string]any{"id": 1}})
	})

	for path, key := range map[string]string{
		"/admin/api/2024-10/products.json":  "products",
		"/admin/api/2024-10/customers.json": "customers",
		"/admin/api/2024-10/orders.json":    "orders",
	} {
		key := key
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if key == "orders" {
				f.mu.Lock()
				failing := f.failOrders
				f.mu.Unlock()
				if failing {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{key: []any{}})
		})
	}

	return mux
}

func signCallbackQuery(secret string, query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.Join(query[k], ","))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

type installFixture struct {
	cfg    *config.Config
	app    *shopify.App
	repo   *tenants.Repository
	ingest *ingest.Service
	db     *gorm.DB
	fake   *fakeShopifyInstall
}

func setupInstallFixture(t *testing.T) *installFixture {
	t.Helper()

	fake := &fakeShopifyInstall{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		Shopify: config.ShopifyConfig{
			APIKey:      "install-api-key",
			APISecret:   installSecret,
			Scopes:      "read_products,read_customers,read_orders",
			RedirectURI: "https://app.example.com/auth/shopify/callback",
			WebhookURI:  "https://app.example.com/webhooks/shopify",
			APIVersion:  "2024-10",
			BaseURL:     server.URL,
		},
		Sync: config.SyncConfig{
			CallDelay:   time.Millisecond,
			MaxAttempts: 2,
			PageSize:    50,
			BackoffBase: time.Millisecond,
		},
		Frontend: config.FrontendConfig{SuccessURL: "https://app.example.com/onboarding"},
	}

	db := setupInstallDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	app := shopify.NewApp(cfg.Shopify)
	repo := tenants.NewRepository(db)

	ingestSvc, err := ingest.NewService(ingest.ServiceParams{
		App:       app,
		Tenants:   repo,
		Products:  products.NewRepository(db),
		Customers: customers.NewRepository(db),
		Orders:    orders.NewRepository(db),
		Logger:    logg,
		Sync:      cfg.Sync,
	})
	require.NoError(t, err)

	return &installFixture{cfg: cfg, app: app, repo: repo, ingest: ingestSvc, db: db, fake: fake}
}

func TestShopifyInstallRedirectsToAuthorize(t *testing.T) {
	fix := setupInstallFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	handler := ShopifyInstall(fix.app, logg)

	req := httptest.NewRequest(http.MethodGet, "/auth/shopify?shop=demo.myshopify.com", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusFound, resp.Code)
	location, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/admin/oauth/authorize", location.Path)
	assert.Equal(t, "install-api-key", location.Query().Get("client_id"))
	assert.NotEmpty(t, location.Query().Get("state"))
}

func TestShopifyInstallRejectsBadDomain(t *testing.T) {
	fix := setupInstallFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	handler := ShopifyInstall(fix.app, logg)

	for _, shop := range []string{"", "evil.example.com", "UPPER.myshopify.com"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/shopify?shop="+url.QueryEscape(shop), nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code, "shop %q", shop)
	}
}

func TestShopifyCallbackInstallsTenant(t *testing.T) {
	fix := setupInstallFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	handler := ShopifyCallback(fix.cfg, fix.app, fix.repo, fix.ingest, logg)

	query := url.Values{}
	query.Set("shop", "demo.myshopify.com")
	query.Set("code", "auth-code-123")
	query.Set("state", "nonce-abc")
	query.Set("timestamp", "1700000000")
	query.Set("hmac", signCallbackQuery(installSecret, query))

	req := httptest.NewRequest(http.MethodGet, "/auth/shopify/callback?"+query.Encode(), nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusFound, resp.Code)

	var tenant models.Tenant
	require.NoError(t, fix.db.Where("shop_domain = ?", "demo.myshopify.com").First(&tenant).Error)
	assert.Equal(t, "active", tenant.Status)
	assert.Equal(t, "shpat_install_token", tenant.AccessToken)
	require.NotNil(t, tenant.ShopName)
	assert.Equal(t, "Demo Shop", *tenant.ShopName)

	location, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location.String(), fix.cfg.Frontend.SuccessURL))
	assert.Equal(t, "demo.myshopify.com", location.Query().Get("installed_shop"))
	assert.Equal(t, tenant.ID.String(), location.Query().Get("tenantId"))

	fix.fake.mu.Lock()
	topics := append([]string(nil), fix.fake.webhookTopics...)
	tokenCalls := fix.fake.tokenCalls
	fix.fake.mu.Unlock()
	assert.Equal(t, 1, tokenCalls)
	assert.ElementsMatch(t, shopify.SubscriptionTopics, topics)

	// The backfill runs detached from the request; wait for the cursors it
	// seeds on completion.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var after models.Tenant
		require.NoError(t, fix.db.Where("id = ?", tenant.ID).First(&after).Error)
		if after.ProductsCursor != nil && after.CustomersCursor != nil && after.OrdersCursor != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("backfill did not seed cursors within deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShopifyCallbackRejectsBadHMAC(t *testing.T) {
	fix := setupInstallFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	handler := ShopifyCallback(fix.cfg, fix.app, fix.repo, fix.ingest, logg)

	query := url.Values{}
	query.Set("shop", "demo.myshopify.com")
	query.Set("code", "auth-code-123")
	query.Set("state", "nonce-abc")
	query.Set("hmac", "deadbeef")

	req := httptest.NewRequest(http.MethodGet, "/auth/shopify/callback?"+query.Encode(), nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)

	var count int64
	require.NoError(t, fix.db.Model(&models.Tenant{}).Count(&count).Error)
	assert.Zero(t, count)

	fix.fake.mu.Lock()
	defer fix.fake.mu.Unlock()
	assert.Zero(t, fix.fake.tokenCalls)
}
