package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
	"github.com/shoplytics/shoplytics-backend/pkg/metrics"
	"github.com/shoplytics/shoplytics-backend/pkg/redis"
)

const (
	entityProducts  = "products"
	entityCustomers = "customers"
	entityOrders    = "orders"
)

// ServiceParams wires the ingestion orchestrator.
type ServiceParams struct {
	App       *shopify.App
	Tenants   *tenants.Repository
	Products  *products.Repository
	Customers *customers.Repository
	Orders    *orders.Repository
	Cache     *redis.Client
	Logger    *logger.Logger
	Metrics   *metrics.IngestMetrics
	Sync      config.SyncConfig
}

// Service pulls catalog, customer and order data from Shopify into the
// tenant's mirror, both as a full backfill after installation and as
// cursor-driven delta passes.
type Service struct {
	app       *shopify.App
	tenants   *tenants.Repository
	products  *products.Repository
	customers *customers.Repository
	orders    *orders.Repository
	cache     *redis.Client
	logg      *logger.Logger
	metrics   *metrics.IngestMetrics
	cfg       config.SyncConfig
}

func NewService(params ServiceParams) (*Service, error) {
	if params.App == nil {
		return nil, fmt.Errorf("shopify app required")
	}
	if params.Tenants == nil || params.Products == nil || params.Customers == nil || params.Orders == nil {
		return nil, fmt.Errorf("repositories required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		app:       params.App,
		tenants:   params.Tenants,
		products:  params.Products,
		customers: params.Customers,
		orders:    params.Orders,
		cache:     params.Cache,
		logg:      params.Logger,
		metrics:   params.Metrics,
		cfg:       params.Sync,
	}, nil
}

// runPager walks a paginated endpoint, persisting one page per rate-limited
// call. The pager does not advance on failure, so a retried fetch re-reads
// the same page and the page-then-persist unit stays idempotent.
func (s *Service) runPager(ctx context.Context, entity string, pager *shopify.Pager, persistPage func(ctx context.Context) (int, error)) error {
	throttle := shopify.NewThrottle(s.cfg)
	throttle.OnRetry = func(error) { s.metrics.IncRetries(entity) }

	for {
		var advanced bool
		err := throttle.Do(ctx, func(ctx context.Context) error {
			advanced = pager.Next(ctx)
			return pager.Err()
		})
		if err != nil {
			return fmt.Errorf("fetching %s page: %w", entity, err)
		}
		if !advanced {
			return nil
		}

		count, err := persistPage(ctx)
		if err != nil {
			return fmt.Errorf("persisting %s page: %w", entity, err)
		}
		s.metrics.IncPages(entity)
		s.metrics.AddRecords(entity, count)
	}
}

// SyncProducts ingests products updated at or after since. An empty since
// walks the full catalog.
func (s *Service) SyncProducts(ctx context.Context, tenant *models.Tenant, since string) error {
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	pager := client.ProductPages(since, s.cfg.PageSize)
	return s.runPager(ctx, entityProducts, pager, func(ctx context.Context) (int, error) {
		var page shopify.ProductsEnvelope
		if err := pager.Decode(&page); err != nil {
			return 0, err
		}
		if err := s.products.UpsertBatch(ctx, tenant.ID, page.Products); err != nil {
			return 0, err
		}
		return len(page.Products), nil
	})
}

// SyncCustomers ingests customers updated at or after since.
func (s *Service) SyncCustomers(ctx context.Context, tenant *models.Tenant, since string) error {
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	pager := client.CustomerPages(since, s.cfg.PageSize)
	return s.runPager(ctx, entityCustomers, pager, func(ctx context.Context) (int, error) {
		var page shopify.CustomersEnvelope
		if err := pager.Decode(&page); err != nil {
			return 0, err
		}
		if err := s.customers.UpsertBatch(ctx, tenant.ID, page.Customers); err != nil {
			return 0, err
		}
		return len(page.Customers), nil
	})
}

// SyncOrders ingests orders of any status created at or after since. An
// empty since walks every order. Delta passes go through syncOrderUpdates
// instead, which filters on update time.
func (s *Service) SyncOrders(ctx context.Context, tenant *models.Tenant, since string) error {
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	return s.drainOrders(ctx, tenant, client.OrderPages(since, s.cfg.PageSize))
}

// syncOrderUpdates ingests orders updated at or after since, catching edits
// to orders that predate the window.
func (s *Service) syncOrderUpdates(ctx context.Context, tenant *models.Tenant, since string) error {
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	return s.drainOrders(ctx, tenant, client.OrderUpdatePages(since, s.cfg.PageSize))
}

func (s *Service) drainOrders(ctx context.Context, tenant *models.Tenant, pager *shopify.Pager) error {
	return s.runPager(ctx, entityOrders, pager, func(ctx context.Context) (int, error) {
		var page shopify.OrdersEnvelope
		if err := pager.Decode(&page); err != nil {
			return 0, err
		}
		if err := s.orders.UpsertBatch(ctx, tenant.ID, page.Orders); err != nil {
			return 0, err
		}
		return len(page.Orders), nil
	})
}

// Backfill walks the tenant's entire store. Entities paginate independently
// and in parallel, each under its own call pacing. The pass finishes by
// seeding all three cursors so the next delta sync only picks up changes
// made after the backfill started.
func (s *Service) Backfill(ctx context.Context, tenant *models.Tenant) error {
	logCtx := s.logg.WithTenantID(s.logg.WithShopDomain(ctx, tenant.ShopDomain), tenant.ID.String())
	s.logg.Info(logCtx, "backfill started")
	startedAt := time.Now().UTC()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.SyncProducts(groupCtx, tenant, "") })
	group.Go(func() error { return s.SyncCustomers(groupCtx, tenant, "") })
	group.Go(func() error { return s.SyncOrders(groupCtx, tenant, "") })
	if err := group.Wait(); err != nil {
		s.logg.Error(logCtx, "backfill failed", err)
		return err
	}

	if err := s.tenants.SetCursors(ctx, tenant.ID, tenants.Cursors{
		Products:  &startedAt,
		Customers: &startedAt,
		Orders:    &startedAt,
	}); err != nil {
		return fmt.Errorf("seeding cursors: %w", err)
	}

	s.invalidateInsights(ctx, tenant)
	s.logg.Info(s.logg.WithField(logCtx, "duration", time.Since(startedAt).String()), "backfill complete")
	return nil
}

// DeltaSync ingests everything updated since the stored cursors. The new
// watermark is captured once before any fetch, and all three cursors move to
// it in a single write only after every entity succeeded. A failed pass
// leaves the cursors alone, so the next one re-covers the same window.
func (s *Service) DeltaSync(ctx context.Context, tenant *models.Tenant) error {
	logCtx := s.logg.WithTenantID(s.logg.WithShopDomain(ctx, tenant.ShopDomain), tenant.ID.String())

	cursors, err := s.tenants.GetCursors(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("loading cursors: %w", err)
	}

	now := time.Now().UTC()

	if err := s.SyncProducts(ctx, tenant, formatCursor(cursors.Products)); err != nil {
		return err
	}
	if err := s.SyncCustomers(ctx, tenant, formatCursor(cursors.Customers)); err != nil {
		return err
	}
	if err := s.syncOrderUpdates(ctx, tenant, formatCursor(cursors.Orders)); err != nil {
		return err
	}

	if err := s.tenants.SetCursors(ctx, tenant.ID, tenants.Cursors{
		Products:  &now,
		Customers: &now,
		Orders:    &now,
	}); err != nil {
		return fmt.Errorf("advancing cursors: %w", err)
	}

	s.invalidateInsights(ctx, tenant)
	s.logg.Info(logCtx, "delta sync complete")
	return nil
}

func formatCursor(cursor *time.Time) string {
	if cursor == nil {
		return ""
	}
	return cursor.UTC().Format(time.RFC3339)
}

// invalidateInsights drops the tenant's cached insight responses after new
// data landed. Cache trouble is logged, never surfaced: the cache is a
// freshness optimization, not a correctness dependency.
func (s *Service) invalidateInsights(ctx context.Context, tenant *models.Tenant) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateTenant(ctx, tenant.ID.String(), "insights"); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "insights cache invalidation failed")
	}
}
