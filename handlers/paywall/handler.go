package paywall

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	session "github.com/stripe/stripe-go/v82/checkout/session"
)

const (
	PlanMonthly = "premium_monthly"
	PlanAnnual  = "premium_annual"
)

type Handler struct {
	cfg          *config.Config
	entitlements *entitlements.Service
	ledger       *ledger.Service
}

func New(cfg *config.Config, ent *entitlements.Service, ldg *ledger.Service) *Handler {
	return &Handler{cfg: cfg, entitlements: ent, ledger: ldg}
}

// HandleGrantDemo grants a seven-day demo premium
// @Summary Grant demo premium
// @Description Marks the user premium for seven days. Calling it again resets the window instead of extending it.
// @Tags paywall
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]bool "success: true"
// @Failure 401 {object} map[string]string "error: Sign in required"
// @Failure 500 {object} map[string]string "error"
// @Router /v1/paywall/grant-demo [post]
func (h *Handler) HandleGrantDemo(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required."})
		return
	}

	if err := h.entitlements.GrantDemoPremium(userID, entitlements.DemoGrantDays); err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to grant demo premium in HandleGrantDemo")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to upgrade at this time."})
		return
	}

	utils.LogSuccessWithUser(userID, "Demo premium granted in HandleGrantDemo")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type checkoutRequest struct {
	PlanID string `json:"planId"`
}

// HandleCheckout creates a subscription checkout session
// @Summary Start a premium checkout
// @Description Creates a billing checkout session for the chosen plan and returns its URL. The user id rides along as session and subscription metadata so webhook events can be attributed without a customer lookup.
// @Tags paywall
// @Accept json
// @Produce json
// @Param body body checkoutRequest false "Plan selection, defaults to premium_monthly"
// @Security BearerAuth
// @Success 200 {object} map[string]string "checkoutUrl"
// @Failure 401 {object} map[string]string "error: Sign in required"
// @Failure 501 {object} map[string]string "error: Stripe not configured"
// @Failure 500 {object} map[string]string "error"
// @Router /v1/paywall/checkout [post]
func (h *Handler) HandleCheckout(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required."})
		return
	}

	if h.cfg.StripeSecretKey == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Stripe is not configured."})
		return
	}

	var req checkoutRequest
	_ = c.ShouldBindJSON(&req)
	planID := req.PlanID
	if planID != PlanAnnual {
		planID = PlanMonthly
	}

	priceID := h.cfg.StripePriceMonthly
	if planID == PlanAnnual {
		priceID = h.cfg.StripePriceAnnual
	}
	if priceID == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Stripe price ID is not configured for this plan."})
		return
	}

	stripe.Key = h.cfg.StripeSecretKey

	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(normalizeSuccessURL(h.cfg.StripeSuccessURL)),
		CancelURL:           stripe.String(h.cfg.StripeCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": userID,
				"plan_id": planID,
			},
		},
	}
	if email := c.GetString("email"); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("plan_id", planID)

	s, err := session.New(params)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to create checkout session in HandleCheckout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to start checkout at this time."})
		return
	}
	if s.URL == "" {
		utils.LogErrorWithUser(userID, nil, "Stripe returned no checkout URL in HandleCheckout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe did not return a checkout URL."})
		return
	}

	utils.LogSuccessWithUser(userID, "Checkout session created in HandleCheckout")
	c.JSON(http.StatusOK, gin.H{"checkoutUrl": s.URL})
}

type logRequest struct {
	Event   string `json:"event"`
	Trigger string `json:"trigger"`
}

// HandleLog records a paywall analytics event
// @Summary Log a paywall interaction
// @Description Fire-and-forget analytics tag written to the usage ledger.
// @Tags paywall
// @Accept json
// @Security BearerAuth
// @Success 204
// @Failure 400 {object} map[string]string "error: event and trigger required"
// @Router /v1/paywall/log [post]
func (h *Handler) HandleLog(c *gin.Context) {
	userID := c.GetString("user_id")

	var req logRequest
	_ = c.ShouldBindJSON(&req)
	if req.Event == "" || req.Trigger == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "`event` and `trigger` are required"})
		return
	}

	h.ledger.RecordUsage(userID, fmt.Sprintf("paywall_%s:%s", req.Event, req.Trigger))
	c.Status(http.StatusNoContent)
}

// normalizeSuccessURL makes sure the checkout session id template is present
// so the app can confirm the purchase on return.
func normalizeSuccessURL(url string) string {
	if strings.Contains(url, "{CHECKOUT_SESSION_ID}") {
		return url
	}
	separator := "?"
	if strings.Contains(url, "?") {
		separator = "&"
	}
	return url + separator + "session_id={CHECKOUT_SESSION_ID}"
}
