package profile

import (
	"errors"
	"net/http"
	"time"

	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// HandleGetProfile aggregates profile, streak and premium state
// @Summary Fetch the full profile document
// @Description Returns onboarding profile, streak counters and the derived premium status in one payload.
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "error: Sign in required"
// @Failure 500 {object} map[string]string "error"
// @Router /v1/profile [get]
func (h *Handler) HandleGetProfile(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required."})
		return
	}

	if h.db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load profile at this time."})
		return
	}

	var profileRow models.Profile
	profileFound := true
	if err := h.db.Where("user_id = ?", userID).First(&profileRow).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogErrorWithUser(userID, err, "Failed to load profile in HandleGetProfile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load profile at this time."})
			return
		}
		profileFound = false
	}

	var streakRow models.Streak
	streakFound := true
	if err := h.db.Where("user_id = ?", userID).First(&streakRow).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogErrorWithUser(userID, err, "Failed to load streak in HandleGetProfile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load profile at this time."})
			return
		}
		streakFound = false
	}

	now := time.Now()

	var profileDoc gin.H
	if profileFound {
		preferences := profileRow.ContentPreferences
		if preferences == nil {
			preferences = []string{}
		}
		profileDoc = gin.H{
			"goal":                profileRow.Goal,
			"familiarity":         profileRow.Familiarity,
			"content_preferences": preferences,
			"reminder_slot":       profileRow.ReminderSlot,
			"wants_streaks":       profileRow.WantsStreaks,
			"next_reminder_at":    profileRow.NextReminderAt,
		}
	}

	var streakDoc gin.H
	if streakFound {
		streakDoc = gin.H{
			"current_streak":      streakRow.CurrentStreak,
			"longest_streak":      streakRow.LongestStreak,
			"last_completed_date": streakRow.LastCompletedDate,
		}
	}

	// The boolean alone is not trusted: expiry is re-checked at read time.
	isActive := profileFound && profileRow.IsPremium &&
		(profileRow.PremiumExpiresAt == nil || profileRow.PremiumExpiresAt.After(now))
	trialActive := profileFound && profileRow.PremiumTrialEndsAt != nil &&
		profileRow.PremiumTrialEndsAt.After(now)

	premiumDoc := gin.H{
		"is_active":          isActive,
		"entitlement_source": nil,
		"expires_at":         nil,
		"trial": gin.H{
			"is_trial":      trialActive,
			"trial_ends_at": nil,
		},
		"plan_id":     nil,
		"customer_id": nil,
	}
	if profileFound {
		premiumDoc["entitlement_source"] = profileRow.PremiumSource
		premiumDoc["expires_at"] = profileRow.PremiumExpiresAt
		premiumDoc["trial"] = gin.H{
			"is_trial":      trialActive,
			"trial_ends_at": profileRow.PremiumTrialEndsAt,
		}
		premiumDoc["plan_id"] = profileRow.PremiumPlanID
		premiumDoc["customer_id"] = profileRow.StripeCustomerID
	}

	c.JSON(http.StatusOK, gin.H{
		"profile": profileDoc,
		"streak":  streakDoc,
		"premium": premiumDoc,
	})
}
