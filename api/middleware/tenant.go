package middleware

import (
	"context"
	"net/http"

	"github.com/shoplytics/shoplytics-backend/api/responses"
	"github.com/shoplytics/shoplytics-backend/api/validators"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

const (
	tenantKeyHeader = "X-Tenant-Key"
	maxTenantKeyLen = 256
)

type tenantCtxKey struct{}

// TenantFromContext returns the tenant resolved for the request, or nil when
// the route is not tenant scoped.
func TenantFromContext(ctx context.Context) *models.Tenant {
	tenant, _ := ctx.Value(tenantCtxKey{}).(*models.Tenant)
	return tenant
}

// TenantResolver guards tenant-scoped routes. The caller identifies the
// tenant through the X-Tenant-Key header or a tenant/shop query parameter;
// any of the tenant's public identifiers works. Missing key is a 400,
// unknown or suspended tenants are a 403.
func TenantResolver(logg *logger.Logger, repo *tenants.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := validators.SanitizeString(r.Header.Get(tenantKeyHeader), maxTenantKeyLen)
			if key == "" {
				key = validators.SanitizeString(r.URL.Query().Get("tenant"), maxTenantKeyLen)
			}
			if key == "" {
				key = validators.SanitizeString(r.URL.Query().Get("shop"), maxTenantKeyLen)
			}
			if key == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant key required"))
				return
			}

			tenant, err := repo.FindByKey(ctx, key)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
					err = pkgerrors.New(pkgerrors.CodeForbidden, "unknown tenant")
				}
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !tenant.IsActive() {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "tenant is suspended"))
				return
			}

			if logg != nil {
				ctx = logg.WithTenantID(ctx, tenant.ID.String())
				ctx = logg.WithShopDomain(ctx, tenant.ShopDomain)
			}
			ctx = context.WithValue(ctx, tenantCtxKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
