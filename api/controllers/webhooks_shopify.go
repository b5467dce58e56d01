package controllers

import (
	"io"
	"net/http"

	"github.com/shoplytics/shoplytics-backend/api/responses"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	shopifywebhook "github.com/shoplytics/shoplytics-backend/internal/webhooks/shopify"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// ShopifyWebhook receives webhook deliveries. The raw body is read before
// anything else because the HMAC covers the exact bytes Shopify sent; any
// parsing beforehand would invalidate the signature check. Processing
// failures return a non-2xx status so Shopify redelivers.
func ShopifyWebhook(app *shopify.App, svc *shopifywebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		if err := app.VerifyWebhookHMAC(body, r.Header.Get("X-Shopify-Hmac-Sha256")); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		topic := r.Header.Get("X-Shopify-Topic")
		shopDomain := r.Header.Get("X-Shopify-Shop-Domain")
		if topic == "" || shopDomain == "" {
			err := pkgerrors.New(pkgerrors.CodeValidation, "missing webhook topic or shop domain headers")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Handle(ctx, topic, shopDomain, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"received": topic})
	}
}
