package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shoplytics/shoplytics-backend/api/responses"
	"github.com/shoplytics/shoplytics-backend/internal/ingest"
	"github.com/shoplytics/shoplytics-backend/internal/shopify"
	"github.com/shoplytics/shoplytics-backend/internal/tenants"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

const backfillTimeout = 30 * time.Minute

// ShopifyInstall kicks off the OAuth handshake by redirecting the merchant
// to Shopify's authorization page for their store.
func ShopifyInstall(app *shopify.App, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("shop")))
		if !shopify.IsValidShopDomain(shop) {
			err := pkgerrors.New(pkgerrors.CodeValidation, "invalid or missing shop domain")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := shopify.NewNonce()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		installURL, err := app.BuildInstallURL(shop, state)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		http.Redirect(w, r, installURL, http.StatusFound)
	}
}

// ShopifyCallback completes the install: it verifies the callback HMAC,
// trades the code for a permanent token, provisions the tenant, registers
// webhooks, and kicks off the initial backfill before bouncing the merchant
// back to the frontend.
func ShopifyCallback(cfg *config.Config, app *shopify.App, tenantRepo *tenants.Repository, ingestSvc *ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		if err := app.VerifyCallbackHMAC(query); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		shop := strings.ToLower(strings.TrimSpace(query.Get("shop")))
		code := query.Get("code")
		if !shopify.IsValidShopDomain(shop) || code == "" {
			err := pkgerrors.New(pkgerrors.CodeValidation, "missing shop or code")
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logCtx := logg.WithShopDomain(ctx, shop)

		grant, err := app.ExchangeToken(ctx, shop, code)
		if err != nil {
			responses.WriteError(logCtx, logg, w, err)
			return
		}

		client := app.ClientFor(shop, grant.AccessToken)

		params := tenants.InstallParams{
			ShopDomain:  shop,
			AccessToken: grant.AccessToken,
			Scopes:      splitScopes(grant.Scope),
		}
		// Shop profile is bookkeeping only; the install proceeds without it.
		if info, err := client.FetchShop(ctx); err != nil {
			logg.Error(logCtx, "shop profile fetch failed", err)
		} else {
			params.ShopName = &info.Name
			if info.Email != "" {
				params.Email = &info.Email
			}
			if info.Currency != "" {
				params.Currency = &info.Currency
			}
			if info.Timezone != "" {
				params.Timezone = &info.Timezone
			}
		}

		tenant, err := tenantRepo.UpsertOnInstall(ctx, params)
		if err != nil {
			responses.WriteError(logCtx, logg, w, err)
			return
		}
		logCtx = logg.WithTenantID(logCtx, tenant.ID.String())

		client.RegisterWebhooks(logCtx, logg)

		// The backfill can run for minutes on large stores, so it is detached
		// from the request. Missed pages are picked up by the next delta pass.
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
			defer cancel()
			bgCtx = logg.WithTenantID(logg.WithShopDomain(bgCtx, shop), tenant.ID.String())
			if err := ingestSvc.Backfill(bgCtx, tenant); err != nil {
				logg.Error(bgCtx, "initial backfill failed", err)
			}
		}()

		redirect := cfg.Frontend.SuccessURL
		sep := "?"
		if strings.Contains(redirect, "?") {
			sep = "&"
		}
		target := redirect + sep + url.Values{
			"installed_shop": {shop},
			"tenantId":       {tenant.ID.String()},
		}.Encode()
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func splitScopes(scope string) []string {
	parts := strings.Split(scope, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
