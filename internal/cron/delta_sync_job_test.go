package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

type fakeTenantLister struct {
	tenants []models.Tenant
	err     error
}

func (f *fakeTenantLister) ListActive(context.Context) ([]models.Tenant, error) {
	return f.tenants, f.err
}

type fakeDeltaSyncer struct {
	failFor map[string]error
	synced  []string
}

func (f *fakeDeltaSyncer) DeltaSync(_ context.Context, tenant *models.Tenant) error {
	if err, ok := f.failFor[tenant.ShopDomain]; ok {
		return err
	}
	f.synced = append(f.synced, tenant.ShopDomain)
	return nil
}

func activeTenant(domain string) models.Tenant {
	return models.Tenant{ID: uuid.New(), ShopDomain: domain, Status: models.TenantStatusActive}
}

func newDeltaSyncJobForTest(t *testing.T, lister *fakeTenantLister, syncer *fakeDeltaSyncer) Job {
	t.Helper()
	job, err := NewDeltaSyncJob(DeltaSyncJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Tenants: lister,
		Ingest:  syncer,
	})
	if err != nil {
		t.Fatalf("NewDeltaSyncJob: %v", err)
	}
	return job
}

func TestDeltaSyncJobSyncsEveryActiveTenant(t *testing.T) {
	lister := &fakeTenantLister{tenants: []models.Tenant{
		activeTenant("a.myshopify.com"),
		activeTenant("b.myshopify.com"),
	}}
	syncer := &fakeDeltaSyncer{}
	job := newDeltaSyncJobForTest(t, lister, syncer)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(syncer.synced) != 2 {
		t.Fatalf("expected 2 tenants synced, got %v", syncer.synced)
	}
}

func TestDeltaSyncJobContinuesPastTenantFailures(t *testing.T) {
	lister := &fakeTenantLister{tenants: []models.Tenant{
		activeTenant("a.myshopify.com"),
		activeTenant("broken.myshopify.com"),
		activeTenant("c.myshopify.com"),
	}}
	syncer := &fakeDeltaSyncer{failFor: map[string]error{
		"broken.myshopify.com": errors.New("shopify unreachable"),
	}}
	job := newDeltaSyncJobForTest(t, lister, syncer)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if len(syncer.synced) != 2 {
		t.Fatalf("expected the other tenants to sync, got %v", syncer.synced)
	}
}

func TestDeltaSyncJobPropagatesListError(t *testing.T) {
	lister := &fakeTenantLister{err: errors.New("db down")}
	job := newDeltaSyncJobForTest(t, lister, &fakeDeltaSyncer{})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
