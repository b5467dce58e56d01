package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
)

func unmarshalEnvelope(body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decoding response")
	}
	return nil
}

// GetProduct fetches a single product by its Shopify ID.
func (c *Client) GetProduct(ctx context.Context, shopID int64) (*Product, error) {
	resp, err := c.Get(ctx, fmt.Sprintf("/products/%d.json", shopID), nil)
	if err != nil {
		return nil, err
	}
	var env ProductEnvelope
	if err := unmarshalEnvelope(resp.Body, &env); err != nil {
		return nil, err
	}
	return &env.Product, nil
}

// GetCustomer fetches a single customer by its Shopify ID.
func (c *Client) GetCustomer(ctx context.Context, shopID int64) (*Customer, error) {
	resp, err := c.Get(ctx, fmt.Sprintf("/customers/%d.json", shopID), nil)
	if err != nil {
		return nil, err
	}
	var env CustomerEnvelope
	if err := unmarshalEnvelope(resp.Body, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

// GetOrder fetches a single order by its Shopify ID, line items included.
func (c *Client) GetOrder(ctx context.Context, shopID int64) (*Order, error) {
	resp, err := c.Get(ctx, fmt.Sprintf("/orders/%d.json", shopID), nil)
	if err != nil {
		return nil, err
	}
	var env OrderEnvelope
	if err := unmarshalEnvelope(resp.Body, &env); err != nil {
		return nil, err
	}
	return &env.Order, nil
}

// Field projections requested on collection endpoints to keep pages small.
var (
	productFields  = "id,title,status,variants,updated_at"
	customerFields = "id,email,first_name,last_name,total_spent,orders_count,updated_at"
	orderFields    = "id,name,customer,currency,total_price,subtotal_price,total_discounts,total_tax,financial_status,fulfillment_status,processed_at,cancelled_at,line_items,updated_at"
)

// ProductPages pages through /products.json, optionally filtered to records
// updated at or after updatedAtMin (RFC3339).
func (c *Client) ProductPages(updatedAtMin string, pageSize int) *Pager {
	q := url.Values{}
	q.Set("fields", productFields)
	if updatedAtMin != "" {
		q.Set("updated_at_min", updatedAtMin)
	}
	return c.Pages("/products.json", q, pageSize)
}

// CustomerPages pages through /customers.json.
func (c *Client) CustomerPages(updatedAtMin string, pageSize int) *Pager {
	q := url.Values{}
	q.Set("fields", customerFields)
	if updatedAtMin != "" {
		q.Set("updated_at_min", updatedAtMin)
	}
	return c.Pages("/customers.json", q, pageSize)
}

// OrderPages pages through /orders.json across every order status,
// optionally filtered to orders created at or after createdAtMin (RFC3339).
// Backfills filter on creation time so a scoped run covers the orders placed
// in the window regardless of later edits.
func (c *Client) OrderPages(createdAtMin string, pageSize int) *Pager {
	return c.orderPages("created_at_min", createdAtMin, pageSize)
}

// OrderUpdatePages pages through /orders.json filtered to orders updated at
// or after updatedAtMin. Delta passes filter on update time so edits to
// orders created before the window are still picked up.
func (c *Client) OrderUpdatePages(updatedAtMin string, pageSize int) *Pager {
	return c.orderPages("updated_at_min", updatedAtMin, pageSize)
}

func (c *Client) orderPages(timeFilter, min string, pageSize int) *Pager {
	q := url.Values{}
	q.Set("status", "any")
	q.Set("fields", orderFields)
	if min != "" {
		q.Set(timeFilter, min)
	}
	return c.Pages("/orders.json", q, pageSize)
}
