package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the append-only audit log of received Shopify webhooks.
// Rows are never mutated or pruned by the ingestion subsystem. Payload holds
// the raw delivery body as received, before any parsing.
type WebhookEvent struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID   uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`
	Topic      string    `gorm:"column:topic;not null"`
	ShopDomain string    `gorm:"column:shop_domain;not null"`
	Payload    string    `gorm:"column:payload;type:jsonb"`
	ReceivedAt time.Time `gorm:"column:received_at;not null"`
}
