package tenants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplytics/shoplytics-backend/internal/repo"
	"github.com/shoplytics/shoplytics-backend/pkg/db"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
)

// Repository handles tenant persistence.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// InstallParams carries everything collected during an OAuth installation.
type InstallParams struct {
	ShopDomain  string
	AccessToken string
	Scopes      []string
	ShopName    *string
	Email       *string
	Currency    *string
	Timezone    *string
}

// newTenantKey mints the opaque key handed to API consumers.
func newTenantKey() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating tenant key")
	}
	return "ten_" + hex.EncodeToString(buf), nil
}

// UpsertOnInstall creates or refreshes the tenant row for a shop completing
// the OAuth flow. The shop domain is the natural key: a reinstall reuses the
// existing row, replaces the token and scopes, and reactivates the tenant
// without touching its sync cursors or tenant key.
func (r *Repository) UpsertOnInstall(ctx context.Context, params InstallParams) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.DB(ctx).Where("shop_domain = ?", params.ShopDomain).First(&tenant).Error
	switch {
	case err == nil:
		tenant.AccessToken = params.AccessToken
		tenant.Scopes = params.Scopes
		tenant.Status = models.TenantStatusActive
		tenant.UninstalledAt = nil
		applyShopProfile(&tenant, params)
		if err := r.DB(ctx).Save(&tenant).Error; err != nil {
			return nil, err
		}
		return &tenant, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		key, keyErr := newTenantKey()
		if keyErr != nil {
			return nil, keyErr
		}
		tenant = models.Tenant{
			ID:          uuid.New(),
			TenantKey:   key,
			ShopDomain:  params.ShopDomain,
			AccessToken: params.AccessToken,
			Scopes:      params.Scopes,
			Status:      models.TenantStatusActive,
		}
		applyShopProfile(&tenant, params)
		if err := r.DB(ctx).Create(&tenant).Error; err != nil {
			// Two OAuth callbacks for the same shop can race past the
			// lookup; the shop_domain unique index catches the loser.
			if db.IsUniqueViolation(err, "shop_domain") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "shop install already in progress")
			}
			return nil, err
		}
		return &tenant, nil

	default:
		return nil, err
	}
}

func applyShopProfile(tenant *models.Tenant, params InstallParams) {
	if params.ShopName != nil {
		tenant.ShopName = params.ShopName
	}
	if params.Email != nil {
		tenant.Email = params.Email
	}
	if params.Currency != nil {
		tenant.Currency = params.Currency
	}
	if params.Timezone != nil {
		tenant.Timezone = params.Timezone
	}
}

// FindByKey resolves a tenant from any of its public identifiers, trying the
// shop domain first, then the tenant key, then the row id.
func (r *Repository) FindByKey(ctx context.Context, key string) (*models.Tenant, error) {
	var tenant models.Tenant

	err := r.DB(ctx).Where("shop_domain = ?", key).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.DB(ctx).Where("tenant_key = ?", key).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if id, parseErr := uuid.Parse(key); parseErr == nil {
		err = r.DB(ctx).Where("id = ?", id).First(&tenant).Error
		if err == nil {
			return &tenant, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
}

// FindByShopDomain loads the tenant for a shop, not found mapped to a typed
// error so webhook handling can fail closed.
func (r *Repository) FindByShopDomain(ctx context.Context, shopDomain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.DB(ctx).Where("shop_domain = ?", shopDomain).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListActive returns every tenant eligible for syncing.
func (r *Repository) ListActive(ctx context.Context) ([]models.Tenant, error) {
	var list []models.Tenant
	if err := r.DB(ctx).
		Where("status = ?", models.TenantStatusActive).
		Order("created_at asc").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Cursors are the per-entity delta sync watermarks.
type Cursors struct {
	Products  *time.Time
	Customers *time.Time
	Orders    *time.Time
}

// GetCursors loads the current watermarks for a tenant.
func (r *Repository) GetCursors(ctx context.Context, tenantID uuid.UUID) (Cursors, error) {
	var tenant models.Tenant
	err := r.DB(ctx).Select("products_cursor", "customers_cursor", "orders_cursor").
		Where("id = ?", tenantID).
		First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Cursors{}, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	if err != nil {
		return Cursors{}, err
	}
	return Cursors{
		Products:  tenant.ProductsCursor,
		Customers: tenant.CustomersCursor,
		Orders:    tenant.OrdersCursor,
	}, nil
}

// SetCursors advances all three watermarks in a single write. A sync pass
// calls this exactly once, after every entity type succeeded, so a partial
// failure never moves any cursor.
func (r *Repository) SetCursors(ctx context.Context, tenantID uuid.UUID, cursors Cursors) error {
	return r.DB(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"products_cursor":  cursors.Products,
			"customers_cursor": cursors.Customers,
			"orders_cursor":    cursors.Orders,
		}).Error
}

// MarkSuspended deactivates the tenant after an uninstall. The row and its
// data stay in place so a reinstall picks up where it left off.
func (r *Repository) MarkSuspended(ctx context.Context, shopDomain string) error {
	now := time.Now().UTC()
	result := r.DB(ctx).Model(&models.Tenant{}).
		Where("shop_domain = ?", shopDomain).
		Updates(map[string]any{
			"status":         models.TenantStatusSuspended,
			"uninstalled_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	return nil
}
