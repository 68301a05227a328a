package billing

import (
	"net/http"

	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"gorm.io/gorm"
)

type Handler struct {
	cfg          *config.Config
	db           *gorm.DB
	entitlements *entitlements.Service
	ledger       *ledger.Service
}

func New(cfg *config.Config, db *gorm.DB, ent *entitlements.Service, ldg *ledger.Service) *Handler {
	return &Handler{cfg: cfg, db: db, entitlements: ent, ledger: ldg}
}

// HandlePortal opens a billing portal session for the user
// @Summary Open the billing portal
// @Description Creates a billing-provider portal session for the user's stored customer id and returns its URL.
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "portalUrl"
// @Failure 401 {object} map[string]string "error: Sign in required"
// @Failure 404 {object} map[string]string "error: no subscription on file"
// @Failure 501 {object} map[string]string "error: Stripe not configured"
// @Failure 500 {object} map[string]string "error"
// @Router /v1/billing/portal [post]
func (h *Handler) HandlePortal(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required."})
		return
	}

	if h.cfg.StripeSecretKey == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Stripe is not configured."})
		return
	}
	if h.db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to open the billing portal at this time."})
		return
	}

	var profile models.Profile
	if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "Profile not found in HandlePortal")
		c.JSON(http.StatusNotFound, gin.H{"error": "No active subscription found for this user."})
		return
	}
	if profile.StripeCustomerID == nil || *profile.StripeCustomerID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active subscription found for this user."})
		return
	}

	stripe.Key = h.cfg.StripeSecretKey

	returnURL := h.cfg.StripePortalReturnURL
	if returnURL == "" {
		returnURL = h.cfg.StripeCancelURL
	}

	s, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*profile.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to create portal session in HandlePortal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to open the billing portal at this time."})
		return
	}
	if s.URL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe did not return a portal URL."})
		return
	}

	utils.LogSuccessWithUser(userID, "Billing portal session created in HandlePortal")
	c.JSON(http.StatusOK, gin.H{"portalUrl": s.URL})
}
