package models

import (
	"time"

	"gorm.io/datatypes"
)

// PremiumEvent is the append-only ledger of inbound billing and receipt
// events. The unique event_id index is the idempotency fence: webhook
// deliveries are at-least-once, and a replay must insert nothing.
type PremiumEvent struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	EventID   string         `json:"eventId" gorm:"not null;uniqueIndex"`
	UserID    *string        `json:"userId" gorm:"type:uuid;index"`
	EventType string         `json:"eventType" gorm:"not null"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}
