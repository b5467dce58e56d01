package shopify

import (
	"strings"

	"github.com/shoplytics/shoplytics-backend/pkg/config"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
)

// App carries the Shopify app credentials shared by every tenant client.
// Credentials are validated lazily, on the first operation that needs them,
// so a deployment without Shopify configured can still serve everything else.
type App struct {
	cfg config.ShopifyConfig
}

func NewApp(cfg config.ShopifyConfig) *App {
	return &App{cfg: cfg}
}

func (a *App) APIVersion() string {
	return a.cfg.APIVersion
}

func (a *App) requireCredentials() error {
	missing := []string{}
	if a.cfg.APIKey == "" {
		missing = append(missing, "SHOPIFY_API_KEY")
	}
	if a.cfg.APISecret == "" {
		missing = append(missing, "SHOPIFY_API_SECRET")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeConfig, "missing shopify credentials: "+strings.Join(missing, ", "))
	}
	return nil
}

func (a *App) requireSecret() error {
	if a.cfg.APISecret == "" {
		return pkgerrors.New(pkgerrors.CodeConfig, "missing shopify credentials: SHOPIFY_API_SECRET")
	}
	return nil
}

// baseURL resolves the scheme and host for calls against a shop. The
// configured override takes precedence so tests can target a local server.
func (a *App) baseURL(shopDomain string) string {
	if a.cfg.BaseURL != "" {
		return strings.TrimRight(a.cfg.BaseURL, "/")
	}
	return "https://" + shopDomain
}
