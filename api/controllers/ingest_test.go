package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplytics/shoplytics-backend/api/middleware"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

func installTestTenant(t *testing.T, fix *installFixture) string {
	t.Helper()
	tenant, err := fix.repo.UpsertOnInstall(context.Background(), tenants.InstallParams{
		ShopDomain:  "ingest.myshopify.com",
		AccessToken: "shpat_token",
		Scopes:      []string{"read_orders"},
	})
	require.NoError(t, err)
	return tenant.TenantKey
}

func TestIngestEntityRunsSync(t *testing.T) {
	fix := setupInstallFixture(t)
	key := installTestTenant(t, fix)
	logg := logger.New(logger.Options{ServiceName: "test"})

	handler := middleware.TenantResolver(logg, fix.repo)(IngestEntity(fix.ingest, "orders", logg))

	req := httptest.NewRequest(http.MethodPost, "/ingest/orders?since=2026-01-01T00:00:00Z", nil)
	req.Header.Set("X-Tenant-Key", key)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestIngestEntityRejectsBadSince(t *testing.T) {
	fix := setupInstallFixture(t)
	key := installTestTenant(t, fix)
	logg := logger.New(logger.Options{ServiceName: "test"})

	handler := middleware.TenantResolver(logg, fix.repo)(IngestEntity(fix.ingest, "orders", logg))

	req := httptest.NewRequest(http.MethodPost, "/ingest/orders?since=yesterday", nil)
	req.Header.Set("X-Tenant-Key", key)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIngestEntityAcceptsSinceBody(t *testing.T) {
	fix := setupInstallFixture(t)
	key := installTestTenant(t, fix)
	logg := logger.New(logger.Options{ServiceName: "test"})

	handler := middleware.TenantResolver(logg, fix.repo)(IngestEntity(fix.ingest, "orders", logg))

	req := httptest.NewRequest(http.MethodPost, "/ingest/orders", strings.NewReader(`{"since":"2026-01-01T00:00:00Z"}`))
	req.Header.Set("X-Tenant-Key", key)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestIngestEntitySurfacesUpstreamFailure(t *testing.T) {
	fix := setupInstallFixture(t)
	key := installTestTenant(t, fix)
	logg := logger.New(logger.Options{ServiceName: "test"})

	fix.fake.mu.Lock()
	fix.fake.failOrders = true
	fix.fake.mu.Unlock()

	handler := middleware.TenantResolver(logg, fix.repo)(IngestEntity(fix.ingest, "orders", logg))

	req := httptest.NewRequest(http.MethodPost, "/ingest/orders", nil)
	req.Header.Set("X-Tenant-Key", key)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadGateway, resp.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, "UPSTREAM_ERROR", payload.Error.Code)
}

func TestIngestDeltaAdvancesCursors(t *testing.T) {
	fix := setupInstallFixture(t)
	key := installTestTenant(t, fix)
	logg := logger.New(logger.Options{ServiceName: "test"})

	handler := middleware.TenantResolver(logg, fix.repo)(IngestDelta(fix.ingest, logg))

	req := httptest.NewRequest(http.MethodGet, "/ingest/delta", nil)
	req.Header.Set("X-Tenant-Key", key)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	tenant, err := fix.repo.FindByKey(context.Background(), key)
	require.NoError(t, err)
	cursors, err := fix.repo.GetCursors(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.NotNil(t, cursors.Products)
	assert.NotNil(t, cursors.Customers)
	assert.NotNil(t, cursors.Orders)
}

func TestIngestRequiresTenant(t *testing.T) {
	fix := setupInstallFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test"})

	handler := middleware.TenantResolver(logg, fix.repo)(IngestDelta(fix.ingest, logg))

	req := httptest.NewRequest(http.MethodGet, "/ingest/delta", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
