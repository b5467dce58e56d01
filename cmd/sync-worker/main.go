package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shoplytics/shoplytics-backend/internal/cron"
	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/ingest"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
	"github.com/shoplytics/shoplytics-backend/pkg/metrics"
	"github.com/shoplytics/shoplytics-backend/pkg/migrate"
	"github.com/shoplytics/shoplytics-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	app := shopify.NewApp(cfg.Shopify)
	tenantRepo := tenants.NewRepository(dbClient.DB())

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		App:       app,
		Tenants:   tenantRepo,
		Products:  products.NewRepository(dbClient.DB()),
		Customers: customers.NewRepository(dbClient.DB()),
		Orders:    orders.NewRepository(dbClient.DB()),
		Cache:     redisClient,
		Logger:    logg,
		Metrics:   metrics.NewIngestMetrics(prometheus.DefaultRegisterer),
		Sync:      cfg.Sync,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest service", err)
		os.Exit(1)
	}

	deltaSyncJob, err := cron.NewDeltaSyncJob(cron.DeltaSyncJobParams{
		Logger:  logg,
		Tenants: tenantRepo,
		Ingest:  ingestService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delta sync job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("delta-sync"), cfg.Sync.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(deltaSyncJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}
