package shopify

import "time"

// Wire types for the Admin REST payloads we consume. Shopify encodes money
// as decimal strings; they stay strings here and are parsed at the
// persistence boundary.

type Product struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Variants  []Variant `json:"variants"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Variant struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	SKU   string `json:"sku"`
	Price string `json:"price"`
}

type Customer struct {
	ID          int64   `json:"id"`
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	TotalSpent  string  `json:"total_spent"`
	OrdersCount *int    `json:"orders_count"`
}

type Order struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Customer          *Customer  `json:"customer"`
	Currency          string     `json:"currency"`
	TotalPrice        string     `json:"total_price"`
	SubtotalPrice     string     `json:"subtotal_price"`
	TotalDiscounts    string     `json:"total_discounts"`
	TotalTax          string     `json:"total_tax"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus *string    `json:"fulfillment_status"`
	ProcessedAt       *time.Time `json:"processed_at"`
	CancelledAt       *time.Time `json:"cancelled_at"`
	LineItems         []LineItem `json:"line_items"`
}

type LineItem struct {
	ID            int64   `json:"id"`
	ProductID     *int64  `json:"product_id"`
	Title         string  `json:"title"`
	SKU           *string `json:"sku"`
	Quantity      int     `json:"quantity"`
	Price         string  `json:"price"`
	TotalDiscount string  `json:"total_discount"`
}

type Shop struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Domain   string `json:"domain"`
	Currency string `json:"currency"`
	Timezone string `json:"iana_timezone"`
}

type Webhook struct {
	ID      int64  `json:"id"`
	Topic   string `json:"topic"`
	Address string `json:"address"`
	Format  string `json:"format"`
}

// Collection and single-resource envelopes.

type ProductsEnvelope struct {
	Products []Product `json:"products"`
}

type ProductEnvelope struct {
	Product Product `json:"product"`
}

type CustomersEnvelope struct {
	Customers []Customer `json:"customers"`
}

type CustomerEnvelope struct {
	Customer Customer `json:"customer"`
}

type OrdersEnvelope struct {
	Orders []Order `json:"orders"`
}

type OrderEnvelope struct {
	Order Order `json:"order"`
}

type ShopEnvelope struct {
	Shop Shop `json:"shop"`
}

type WebhookEnvelope struct {
	Webhook Webhook `json:"webhook"`
}

type WebhooksEnvelope struct {
	Webhooks []Webhook `json:"webhooks"`
}
