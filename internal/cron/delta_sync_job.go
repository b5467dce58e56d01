package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

type deltaSyncTenantLister interface {
	ListActive(ctx context.Context) ([]models.Tenant, error)
}

type deltaSyncRunner interface {
	DeltaSync(ctx context.Context, tenant *models.Tenant) error
}

// DeltaSyncJobParams wire the periodic per-tenant sync job.
type DeltaSyncJobParams struct {
	Logger  *logger.Logger
	Tenants deltaSyncTenantLister
	Ingest  deltaSyncRunner
}

func NewDeltaSyncJob(params DeltaSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant lister required")
	}
	if params.Ingest == nil {
		return nil, fmt.Errorf("ingest service required")
	}
	return &deltaSyncJob{
		logg:    params.Logger,
		tenants: params.Tenants,
		ingest:  params.Ingest,
	}, nil
}

type deltaSyncJob struct {
	logg    *logger.Logger
	tenants deltaSyncTenantLister
	ingest  deltaSyncRunner
}

func (j *deltaSyncJob) Name() string { return "delta-sync" }

// Run syncs every active tenant in turn. One tenant's failure is collected
// and the batch moves on; Shopify's per-shop rate buckets make sequential
// processing the safe default.
func (j *deltaSyncJob) Run(ctx context.Context) error {
	active, err := j.tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active tenants: %w", err)
	}

	var errs error
	synced := 0
	for i := range active {
		tenant := &active[i]
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}

		tenantCtx := j.logg.WithTenantID(j.logg.WithShopDomain(ctx, tenant.ShopDomain), tenant.ID.String())
		if err := j.ingest.DeltaSync(tenantCtx, tenant); err != nil {
			j.logg.Error(tenantCtx, "tenant delta sync failed", err)
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", tenant.ShopDomain, err))
			continue
		}
		synced++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"tenants_total":  len(active),
		"tenants_synced": synced,
	})
	j.logg.Info(logCtx, "delta sync batch complete")
	return errs
}
