package models

import (
	"time"
)

// PremiumSource identifies which integration last granted premium access.
type PremiumSource string

const (
	SourceDemo       PremiumSource = "demo"
	SourceStripe     PremiumSource = "stripe"
	SourceRevenueCat PremiumSource = "revenuecat"
)

// Profile is the canonical premium record plus the onboarding fields the
// mobile app stores per user. One row per user, upserted in place.
//
// is_premium alone is not authoritative: a row with a past
// premium_expires_at counts as not premium. Readers must go through
// entitlements.PremiumActive instead of trusting the boolean.
type Profile struct {
	ID                 string         `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID             string         `json:"userId" gorm:"type:uuid;not null;uniqueIndex"`
	Goal               *string        `json:"goal"`
	Familiarity        *string        `json:"familiarity"`
	ContentPreferences []string       `json:"contentPreferences" gorm:"serializer:json"`
	ReminderSlot       *string        `json:"reminderSlot"`
	WantsStreaks       bool           `json:"wantsStreaks" gorm:"default:true"`
	NextReminderAt     *time.Time     `json:"nextReminderAt"`
	IsPremium          bool           `json:"isPremium"`
	PremiumExpiresAt   *time.Time     `json:"premiumExpiresAt"`
	PremiumTrialEndsAt *time.Time     `json:"premiumTrialEndsAt"`
	PremiumSource      *PremiumSource `json:"premiumSource" gorm:"type:varchar(20)"`
	PremiumPlanID      *string        `json:"premiumPlanId"`
	StripeCustomerID   *string        `json:"stripeCustomerId"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}
