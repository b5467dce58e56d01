package shopifywebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplytics/shoplytics-backend/internal/customers"
	"github.com/shoplytics/shoplytics-backend/internal/orders"
	"github.com/shoplytics/shoplytics-backend/internal/products"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/db/models"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

type ServiceParams struct {
	App       *shopify.App
	DB        *gorm.DB
	Tenants   *tenants.Repository
	Products  *products.Repository
	Customers *customers.Repository
	Orders    *orders.Repository
	Logger    *logger.Logger
}

// Service turns verified webhook deliveries into mirror updates. Deliveries
// carry partial payloads, so every entity topic re-fetches the canonical
// record by id instead of trusting the delivery body.
type Service struct {
	app       *shopify.App
	db        *gorm.DB
	tenants   *tenants.Repository
	products  *products.Repository
	customers *customers.Repository
	orders    *orders.Repository
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.App == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shopify app required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db required")
	}
	if params.Tenants == nil || params.Products == nil || params.Customers == nil || params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repositories required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		app:       params.App,
		db:        params.DB,
		tenants:   params.Tenants,
		products:  params.Products,
		customers: params.Customers,
		orders:    params.Orders,
		logg:      params.Logger,
	}, nil
}

// entityRef is the only part of the delivery body we read.
type entityRef struct {
	ID int64 `json:"id"`
}

// Handle dispatches one verified delivery. The tenant must exist and be
// active, otherwise the delivery is rejected. Unknown topics are logged and
// dropped so the controller can acknowledge them.
func (s *Service) Handle(ctx context.Context, topic, shopDomain string, payload []byte) error {
	logCtx := s.logg.WithTopic(s.logg.WithShopDomain(ctx, shopDomain), topic)

	tenant, err := s.tenants.FindByShopDomain(ctx, shopDomain)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return pkgerrors.New(pkgerrors.CodeForbidden, "webhook for unknown shop")
		}
		return err
	}

	// app/uninstalled is the one topic a suspended tenant may still deliver
	if !tenant.IsActive() && topic != shopify.TopicAppUninstalled {
		return pkgerrors.New(pkgerrors.CodeForbidden, "webhook for suspended tenant")
	}

	s.audit(logCtx, tenant, topic, shopDomain, payload)

	switch topic {
	case shopify.TopicProductsCreate, shopify.TopicProductsUpdate, shopify.TopicProductsDelete:
		// products/delete goes through the same refresh; the re-fetch 404s
		// for a deleted product and the delivery errors out
		return s.refreshProduct(ctx, tenant, payload)

	case shopify.TopicCustomersCreate, shopify.TopicCustomersUpdate:
		return s.refreshCustomer(ctx, tenant, payload)

	case shopify.TopicOrdersCreate, shopify.TopicOrdersUpdated,
		shopify.TopicOrdersFulfilled, shopify.TopicOrdersCancelled:
		return s.refreshOrder(ctx, tenant, payload)

	case shopify.TopicAppUninstalled:
		return s.tenants.MarkSuspended(ctx, shopDomain)

	default:
		s.logg.Info(logCtx, "ignoring unhandled webhook topic")
		return nil
	}
}

// audit appends the raw delivery to the webhook log. Log trouble never
// blocks processing.
func (s *Service) audit(ctx context.Context, tenant *models.Tenant, topic, shopDomain string, payload []byte) {
	event := models.WebhookEvent{
		ID:         uuid.New(),
		TenantID:   tenant.ID,
		Topic:      topic,
		ShopDomain: shopDomain,
		Payload:    string(payload),
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook audit log write failed")
	}
}

func parseRef(payload []byte) (int64, error) {
	var ref entityRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook payload")
	}
	if ref.ID == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing entity id")
	}
	return ref.ID, nil
}

func (s *Service) refreshProduct(ctx context.Context, tenant *models.Tenant, payload []byte) error {
	id, err := parseRef(payload)
	if err != nil {
		return err
	}
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	product, err := client.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	return s.products.Upsert(ctx, tenant.ID, *product)
}

func (s *Service) refreshCustomer(ctx context.Context, tenant *models.Tenant, payload []byte) error {
	id, err := parseRef(payload)
	if err != nil {
		return err
	}
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	customer, err := client.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	return s.customers.Upsert(ctx, tenant.ID, *customer)
}

func (s *Service) refreshOrder(ctx context.Context, tenant *models.Tenant, payload []byte) error {
	id, err := parseRef(payload)
	if err != nil {
		return err
	}
	client := s.app.ClientFor(tenant.ShopDomain, tenant.AccessToken)
	order, err := client.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return s.orders.Upsert(ctx, tenant.ID, *order)
}
