package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	shopifywebhook "github.com/shoplytics/shoplytics-backend/internal/webhooks/shopify"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func setupWebhookEndpoint(t *testing.T) http.HandlerFunc {
	t.Helper()

	db := setupInstallDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE webhook_events (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  topic TEXT NOT NULL,
  shop_domain TEXT NOT NULL,
  payload TEXT,
  received_at DATETIME NOT NULL
);`).Error)

	tenant := &models.Tenant{
		ID:          uuid.New(),
		TenantKey:   "ten_webhooktest",
		ShopDomain:  "demo.myshopify.com",
		AccessToken: "shpat_token",
		Status:      "active",
	}
	require.NoError(t, db.Create(tenant).Error)

	logg := logger.New(logger.Options{ServiceName: "test"})
	app := shopify.NewApp(config.ShopifyConfig{
		APIKey:     "install-api-key",
		APISecret:  installSecret,
		APIVersion: "2024-10",
	})

	svc, err := shopifywebhook.NewService(shopifywebhook.ServiceParams{
		App:       app,
		DB:        db,
		Tenants:   tenants.NewRepository(db),
		Products:  products.NewRepository(db),
		Customers: customers.NewRepository(db),
		Orders:    orders.NewRepository(db),
		Logger:    logg,
	})
	require.NoError(t, err)

	return ShopifyWebhook(app, svc, logg)
}

func TestShopifyWebhookRejectsBadHMAC(t *testing.T) {
	handler := setupWebhookEndpoint(t)

	body := []byte(`{"id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhookBody("wrong-secret", body))
	req.Header.Set("X-Shopify-Topic", "orders/create")
	req.Header.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestShopifyWebhookRequiresHeaders(t *testing.T) {
	handler := setupWebhookEndpoint(t)

	body := []byte(`{"id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhookBody(installSecret, body))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestShopifyWebhookAcksUnknownTopic(t *testing.T) {
	handler := setupWebhookEndpoint(t)

	body := []byte(`{"id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhookBody(installSecret, body))
	req.Header.Set("X-Shopify-Topic", "themes/publish")
	req.Header.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestShopifyWebhookForbidsUnknownShop(t *testing.T) {
	handler := setupWebhookEndpoint(t)

	body := []byte(`{"id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signWebhookBody(installSecret, body))
	req.Header.Set("X-Shopify-Topic", "orders/create")
	req.Header.Set("X-Shopify-Shop-Domain", "stranger.myshopify.com")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
