package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shoplytics/shoplytics-backend/api/controllers"
	"github.com/shoplytics/shoplytics-backend/api/middleware"
	"github.com/shoplytics/shoplytics-backend/internal/ingest"
	"github.com/shoplytics/shoplytics-backend/internal/insights"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	shopifywebhook "github.com/shoplytics/shoplytics-backend/internal/webhooks/shopify"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
	"github.com/shoplytics/shoplytics-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	app *shopify.App,
	tenantRepo *tenants.Repository,
	ingestService *ingest.Service,
	insightsService *insights.Service,
	webhookService *shopifywebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Frontend),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth/shopify", func(r chi.Router) {
		r.Get("/", controllers.ShopifyInstall(app, logg))
		r.Get("/callback", controllers.ShopifyCallback(cfg, app, tenantRepo, ingestService, logg))
	})

	r.Post("/webhooks/shopify", controllers.ShopifyWebhook(app, webhookService, logg))

	// Tenant-scoped surface. Every route below requires a resolvable,
	// active tenant.
	r.Group(func(r chi.Router) {
		r.Use(middleware.TenantResolver(logg, tenantRepo))

		r.Route("/ingest", func(r chi.Router) {
			r.Post("/full", controllers.IngestFull(ingestService, logg))
			r.Post("/products", controllers.IngestEntity(ingestService, "products", logg))
			r.Post("/customers", controllers.IngestEntity(ingestService, "customers", logg))
			r.Post("/orders", controllers.IngestEntity(ingestService, "orders", logg))
			r.Get("/delta", controllers.IngestDelta(ingestService, logg))
		})

		r.Route("/insights", func(r chi.Router) {
			r.Get("/summary", controllers.InsightsSummary(insightsService, logg))
			r.Get("/orders-by-date", controllers.InsightsOrdersByDate(insightsService, logg))
			r.Get("/top-customers", controllers.InsightsTopCustomers(insightsService, logg))
			r.Get("/top-products", controllers.InsightsTopProducts(insightsService, logg))
			r.Get("/recent-orders", controllers.InsightsRecentOrders(insightsService, logg))
		})
	})

	return r
}
