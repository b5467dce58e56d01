package shopify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
)

var shopDomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// IsValidShopDomain reports whether domain looks like a myshopify.com shop.
// Anything else is rejected before we build URLs or issue requests with it.
func IsValidShopDomain(domain string) bool {
	return shopDomainRe.MatchString(domain)
}

// NewNonce returns a hex-encoded random state value for the OAuth handshake.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating oauth nonce")
	}
	return hex.EncodeToString(buf), nil
}

// BuildInstallURL returns the Shopify authorize URL that starts the OAuth
// flow for the given shop, carrying state as the CSRF nonce.
func (a *App) BuildInstallURL(shopDomain, state string) (string, error) {
	if err := a.requireCredentials(); err != nil {
		return "", err
	}
	if !IsValidShopDomain(shopDomain) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid shop domain").
			WithDetails(map[string]string{"shop": shopDomain})
	}

	q := url.Values{}
	q.Set("client_id", a.cfg.APIKey)
	q.Set("scope", a.cfg.Scopes)
	q.Set("redirect_uri", a.cfg.RedirectURI)
	q.Set("state", state)
	return fmt.Sprintf("%s/admin/oauth/authorize?%s", a.baseURL(shopDomain), q.Encode()), nil
}

// VerifyCallbackHMAC checks the hmac parameter on an OAuth callback. The
// message is every query parameter except hmac and signature, sorted by key
// and joined as k=v pairs with &; repeated keys contribute their values
// comma-joined. The digest is hex-encoded HMAC-SHA256 under the app secret
// and compared in constant time.
func (a *App) VerifyCallbackHMAC(query url.Values) error {
	if err := a.requireSecret(); err != nil {
		return err
	}

	provided := query.Get("hmac")
	if provided == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing hmac parameter")
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.Join(query[k], ","))
	}
	message := strings.Join(pairs, "&")

	mac := hmac.New(sha256.New, []byte(a.cfg.APISecret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "hmac verification failed")
	}
	return nil
}

// VerifyWebhookHMAC checks the X-Shopify-Hmac-Sha256 header against the raw
// request body. Unlike the OAuth callback digest this one is base64-encoded.
func (a *App) VerifyWebhookHMAC(body []byte, header string) error {
	if err := a.requireSecret(); err != nil {
		return err
	}
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook hmac header")
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.APISecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(header)) != 1 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook hmac verification failed")
	}
	return nil
}

// TokenGrant is the response Shopify returns from the access token exchange.
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeToken trades the OAuth authorization code for a permanent offline
// access token.
func (a *App) ExchangeToken(ctx context.Context, shopDomain, code string) (*TokenGrant, error) {
	if err := a.requireCredentials(); err != nil {
		return nil, err
	}
	if !IsValidShopDomain(shopDomain) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shop domain").
			WithDetails(map[string]string{"shop": shopDomain})
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     a.cfg.APIKey,
		"client_secret": a.cfg.APISecret,
		"code":          code,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding token exchange payload")
	}

	endpoint := a.baseURL(shopDomain) + "/admin/oauth/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building token exchange request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, networkError(http.MethodPost, "/admin/oauth/access_token", err), "exchanging oauth token")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "reading token exchange response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Wrap(
			pkgerrors.CodeUpstream,
			statusError(http.MethodPost, "/admin/oauth/access_token", resp.StatusCode, string(body)),
			"exchanging oauth token",
		)
	}

	var grant TokenGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decoding token exchange response")
	}
	if grant.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "token exchange returned empty access token")
	}
	return &grant, nil
}
