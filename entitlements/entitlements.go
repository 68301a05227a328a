// Package entitlements decides whether a user may perform a metered action
// and maintains the canonical premium record reconciled from the demo
// grant, the billing provider and the receipt validator.
package entitlements

import (
	"errors"
	"time"

	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ActionChat       = "chat"
	ActionDevotional = "devotional"

	FreeChatDailyLimit       = 3
	FreeDevotionalDailyLimit = 1

	DemoGrantDays = 7
)

const (
	signInMessage         = "Please sign in to continue."
	chatLimitMessage      = "Daily chat limit reached. Upgrade to Premium for unlimited conversations."
	devotionalLimitMsg    = "Daily devotional limit reached. Upgrade to Premium to unlock unlimited access."
	genericUpgradeMessage = "Upgrade required to continue."
)

// AccessResult is the outcome of an entitlement check.
type AccessResult struct {
	Allowed bool
	Message string
}

// PremiumState carries the canonical fields a provider adapter reconciled
// from its event payload. Applying it is a last-writer-wins upsert.
type PremiumState struct {
	IsActive    bool
	ExpiresAt   *time.Time
	TrialEndsAt *time.Time
	CustomerID  *string
	PlanID      *string
	Source      *models.PremiumSource
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	mode   config.DeploymentMode
	now    func() time.Time
}

func New(db *gorm.DB, ldg *ledger.Service, mode config.DeploymentMode) *Service {
	return &Service{db: db, ledger: ldg, mode: mode, now: time.Now}
}

// EnsureAccess applies the free-tier policy for one metered action. Quota
// windows are calendar days on the server clock, not rolling 24h periods: a
// user gets a fresh quota at local midnight by design.
func (s *Service) EnsureAccess(userID, action string) AccessResult {
	if userID == "" {
		return AccessResult{Allowed: false, Message: signInMessage}
	}

	if s.db == nil {
		// No canonical store. Only acceptable as a local-dev fallback.
		if s.mode == config.ModePermissiveLocal {
			return AccessResult{Allowed: true}
		}
		return AccessResult{Allowed: false, Message: "Service temporarily unavailable."}
	}

	if s.PremiumActive(userID) {
		return AccessResult{Allowed: true}
	}

	limit, denyMessage := quotaFor(action)
	if limit <= 0 {
		return AccessResult{Allowed: true}
	}

	count, err := s.ledger.CountUsageSince(userID, action, s.startOfToday())
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to count usage for entitlement check")
		return AccessResult{Allowed: true}
	}

	if count >= int64(limit) {
		return AccessResult{Allowed: false, Message: denyMessage}
	}
	return AccessResult{Allowed: true}
}

// PremiumActive reads the canonical record and applies the expiry check. A
// stale is_premium with a past expiry counts as free tier.
func (s *Service) PremiumActive(userID string) bool {
	if s.db == nil {
		return false
	}

	var profile models.Profile
	err := s.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogErrorWithUser(userID, err, "Failed to load profile for premium check")
		}
		return false
	}

	if !profile.IsPremium {
		return false
	}
	if profile.PremiumExpiresAt == nil {
		return true
	}
	return profile.PremiumExpiresAt.After(s.now())
}

// GrantDemoPremium upserts a time-boxed demo premium. Repeated calls reset
// the expiry to now+days rather than extending it.
func (s *Service) GrantDemoPremium(userID string, days int) error {
	if s.db == nil {
		return errors.New("canonical store unavailable")
	}
	if days <= 0 {
		days = DemoGrantDays
	}

	source := models.SourceDemo
	expires := s.now().AddDate(0, 0, days)
	profile := models.Profile{
		UserID:             userID,
		IsPremium:          true,
		PremiumExpiresAt:   &expires,
		PremiumTrialEndsAt: nil,
		PremiumSource:      &source,
	}

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_premium", "premium_expires_at", "premium_trial_ends_at", "premium_source", "updated_at",
		}),
	}).Create(&profile).Error
}

// ApplyPremiumState overwrites the premium columns of the canonical record.
// Last writer wins; duplicate deliveries are harmless because this is a
// full-field overwrite, not an increment.
func (s *Service) ApplyPremiumState(userID string, state PremiumState) error {
	if s.db == nil {
		return errors.New("canonical store unavailable")
	}

	profile := models.Profile{
		UserID:             userID,
		IsPremium:          state.IsActive,
		PremiumExpiresAt:   state.ExpiresAt,
		PremiumTrialEndsAt: state.TrialEndsAt,
		PremiumSource:      state.Source,
		PremiumPlanID:      state.PlanID,
		StripeCustomerID:   state.CustomerID,
	}

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_premium", "premium_expires_at", "premium_trial_ends_at",
			"premium_source", "premium_plan_id", "stripe_customer_id", "updated_at",
		}),
	}).Create(&profile).Error
}

// StoreAvailable reports whether the canonical store is wired up.
func (s *Service) StoreAvailable() bool {
	return s.db != nil
}

func quotaFor(action string) (int, string) {
	switch action {
	case ActionChat:
		return FreeChatDailyLimit, chatLimitMessage
	case ActionDevotional:
		return FreeDevotionalDailyLimit, devotionalLimitMsg
	default:
		return 0, genericUpgradeMessage
	}
}

func (s *Service) startOfToday() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
