package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
)

const maxResponseBytes = 8 << 20

// Client issues Admin REST calls for a single shop using its access token.
type Client struct {
	app         *App
	shopDomain  string
	accessToken string
	httpClient  *http.Client
}

// ClientFor builds a tenant-scoped client. The access token is the offline
// token obtained during installation.
func (a *App) ClientFor(shopDomain, accessToken string) *Client {
	return &Client{
		app:         a,
		shopDomain:  shopDomain,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Response is the raw outcome of a successful Admin API call.
type Response struct {
	Body   []byte
	Header http.Header
}

// apiURL resolves a resource path like "/products.json" against the
// versioned Admin API root for this shop.
func (c *Client) apiURL(path string, query url.Values) string {
	u := fmt.Sprintf("%s/admin/api/%s%s", c.app.baseURL(c.shopDomain), c.app.cfg.APIVersion, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get issues a GET against a resource path, e.g. "/orders/123.json".
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.apiURL(path, query), nil)
}

// Post issues a POST with a JSON body against a resource path.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.apiURL(path, nil), body)
}

// GetURL issues a GET against an absolute URL, used to follow pagination
// links returned by Shopify.
func (c *Client) GetURL(ctx context.Context, rawURL string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building request")
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(method, req.URL.Path, resp.StatusCode, string(raw))
	}
	return &Response{Body: raw, Header: resp.Header}, nil
}

// nextPageURL extracts the rel="next" URL from a Link response header.
// Shopify formats it as: <https://...?page_info=xyz>; rel="next".
func nextPageURL(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, attr := range segments[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

// Pager walks a paginated collection endpoint following rel="next" links.
// It is forward-only: a failed Next leaves the position unchanged so the
// same page can be re-fetched, and iteration cannot be restarted.
type Pager struct {
	client  *Client
	nextURL string
	current []byte
	err     error
	done    bool
}

// Pages starts pagination over a collection endpoint such as
// "/products.json". The page size is applied here; callers add their own
// filters (fields, time bounds) through query.
func (c *Client) Pages(path string, query url.Values, pageSize int) *Pager {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	if pageSize > 0 {
		q.Set("limit", fmt.Sprintf("%d", pageSize))
	}
	return &Pager{
		client:  c,
		nextURL: c.apiURL(path, q),
	}
}

// Next fetches the next page, returning false when the collection is
// exhausted or the fetch failed. After a failed Next the pager has not
// advanced, so calling Next again retries the same page.
func (p *Pager) Next(ctx context.Context) bool {
	p.err = nil
	if p.done || p.nextURL == "" {
		return false
	}

	resp, err := p.client.GetURL(ctx, p.nextURL)
	if err != nil {
		p.err = err
		return false
	}

	p.current = resp.Body
	if next := nextPageURL(resp.Header); next != "" {
		p.nextURL = next
	} else {
		p.nextURL = ""
		p.done = true
	}
	return true
}

// Decode unmarshals the current page into dest.
func (p *Pager) Decode(dest any) error {
	if p.current == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "no page fetched")
	}
	if err := json.Unmarshal(p.current, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decoding page")
	}
	return nil
}

// Err reports the failure from the most recent Next call, if any.
func (p *Pager) Err() error {
	return p.err
}
