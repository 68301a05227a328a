package models

import (
	"time"
)

// UsageLog is an append-only record of one metered action. Rows are never
// updated or deleted; daily quotas are computed by counting them.
type UsageLog struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID    string    `json:"userId" gorm:"type:uuid;index"`
	Endpoint  string    `json:"endpoint" gorm:"not null;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}
