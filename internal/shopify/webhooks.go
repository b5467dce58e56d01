package shopify

import (
	"context"

	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

// Webhook topics this app subscribes to after installation.
const (
	TopicOrdersCreate    = "orders/create"
	TopicOrdersUpdated   = "orders/updated"
	TopicOrdersFulfilled = "orders/fulfilled"
	TopicOrdersCancelled = "orders/cancelled"
	TopicCustomersCreate = "customers/create"
	TopicCustomersUpdate = "customers/update"
	TopicProductsCreate  = "products/create"
	TopicProductsUpdate  = "products/update"
	TopicProductsDelete  = "products/delete"
	TopicAppUninstalled  = "app/uninstalled"
)

// SubscriptionTopics lists every topic registered during installation.
var SubscriptionTopics = []string{
	TopicOrdersCreate,
	TopicOrdersUpdated,
	TopicOrdersFulfilled,
	TopicOrdersCancelled,
	TopicCustomersCreate,
	TopicCustomersUpdate,
	TopicProductsCreate,
	TopicProductsUpdate,
	TopicProductsDelete,
	TopicAppUninstalled,
}

// RegisterWebhooks subscribes the shop to every topic we consume. Failures
// on individual topics are logged and skipped; a shop with a partial set of
// subscriptions still works because the periodic sync covers the gaps.
func (c *Client) RegisterWebhooks(ctx context.Context, logg *logger.Logger) {
	address := c.app.cfg.WebhookURI
	if address == "" {
		logg.Warn(ctx, "webhook uri not configured, skipping webhook registration")
		return
	}

	for _, topic := range SubscriptionTopics {
		payload := map[string]any{
			"webhook": map[string]any{
				"topic":   topic,
				"address": address,
				"format":  "json",
			},
		}
		topicCtx := logg.WithTopic(ctx, topic)
		if _, err := c.Post(ctx, "/webhooks.json", payload); err != nil {
			logg.Warn(logg.WithField(topicCtx, "error", err.Error()), "webhook registration failed")
			continue
		}
		logg.Info(topicCtx, "webhook registered")
	}
}

// FetchShop retrieves the shop profile used to enrich the tenant record.
func (c *Client) FetchShop(ctx context.Context) (*Shop, error) {
	resp, err := c.Get(ctx, "/shop.json", nil)
	if err != nil {
		return nil, err
	}
	var env ShopEnvelope
	if err := unmarshalEnvelope(resp.Body, &env); err != nil {
		return nil, err
	}
	return &env.Shop, nil
}
