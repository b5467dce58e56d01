package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shoplytics/shoplytics-backend/api/routes"
	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/ingest"
	"github.com/shoplytics/shoplytics-backend/internal/insights"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	shopifywebhook "github.com/shoplytics/shoplytics-backend/internal/webhooks/shopify"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
	"github.com/shoplytics/shoplytics-backend/pkg/metrics"
	"github.com/shoplytics/shoplytics-backend/pkg/migrate"
	"github.com/shoplytics/shoplytics-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	productRepo := products.NewRepository(dbClient.DB())
	customerRepo := customers.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		App:       app,
		Tenants:   tenantRepo,
		Products:  productRepo,
		Customers: customerRepo,
		Orders:    orderRepo,
		Cache:     redisClient,
		Logger:    logg,
		Metrics:   metrics.NewIngestMetrics(prometheus.DefaultRegisterer),
		Sync:      cfg.Sync,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest service", err)
		os.Exit(1)
	}

	insightsService, err := insights.NewService(insights.ServiceParams{
		Repo:   insights.NewRepository(dbClient.DB()),
		Cache:  redisClient,
		Logger: logg,
		TTL:    cfg.Insights.CacheTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create insights service", err)
		os.Exit(1)
	}

	webhookService, err := shopifywebhook.NewService(shopifywebhook.ServiceParams{
		App:       app,
		DB:        dbClient.DB(),
		Tenants:   tenantRepo,
		Products:  productRepo,
		Customers: customerRepo,
		Orders:    orderRepo,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			app, tenantRepo, ingestService, insightsService, webhookService,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
