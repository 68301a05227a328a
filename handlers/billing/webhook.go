package billing

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Statuses that keep access on. Deliberately generous: past_due and unpaid
// keep a grace period open before the next event revokes access.
var activeSubscriptionStatuses = map[string]bool{
	"trialing": true,
	"active":   true,
	"past_due": true,
	"unpaid":   true,
}

// subscriptionPayload is the explicit shape this adapter accepts from
// subscription lifecycle events. current_period_end lives on the items in
// newer API versions and on the subscription in older ones; both are read,
// item-level preferred.
type subscriptionPayload struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	TrialEnd         int64             `json:"trial_end"`
	Customer         json.RawMessage   `json:"customer"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// HandleWebhook terminates the billing provider's webhook
// @Summary Billing provider webhook
// @Description Verifies the event signature, reconciles subscription state into the premium record and ledgers the event id. Replays are silent no-ops.
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool "received: true"
// @Failure 400 {object} map[string]string "error: signature verification failed"
// @Failure 501 {object} map[string]string "error: webhook secret not configured"
// @Failure 500 {object} map[string]string "error"
// @Router /v1/billing/webhook [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not read the request body"})
		return
	}

	if h.cfg.StripeWebhookSecret == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Stripe webhook secret not configured."})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, h.cfg.StripeWebhookSecret)
	if err != nil {
		utils.LogError(err, "Stripe webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook signature verification failed."})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutSessionCompleted(c, event)
	case "customer.subscription.updated", "customer.subscription.deleted":
		h.handleSubscriptionEvent(c, event)
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (h *Handler) handleCheckoutSessionCompleted(c *gin.Context, event stripe.Event) {
	if dup, failed := h.alreadySeen(c, event.ID); dup || failed {
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse the checkout session payload"})
		return
	}

	// user_id is attached as metadata at session creation precisely so the
	// event can be attributed without a customer lookup.
	userID := session.Metadata["user_id"]
	if userID == "" {
		utils.LogError(nil, "Checkout session completed without user_id metadata")
		h.ledgerEvent(c, event, nil)
		return
	}

	var subscriptionID string
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if subscriptionID == "" {
		h.ledgerEvent(c, event, &userID)
		return
	}

	stripe.Key = h.cfg.StripeSecretKey
	sub, err := stripesub.Get(subscriptionID, nil)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to retrieve the subscription for a completed checkout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}

	planID := sub.Metadata["plan_id"]
	if planID == "" {
		planID = session.Metadata["plan_id"]
	}

	state := stateFromSubscription(string(sub.Status), retrievedPeriodEnd(sub), sub.TrialEnd, customerIDOf(sub), planID)
	if err := h.entitlements.ApplyPremiumState(userID, state); err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to apply premium state from checkout completion")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}

	h.ledgerEvent(c, event, &userID)
}

func (h *Handler) handleSubscriptionEvent(c *gin.Context, event stripe.Event) {
	if dup, failed := h.alreadySeen(c, event.ID); dup || failed {
		return
	}

	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse the subscription payload"})
		return
	}

	userID := sub.Metadata["user_id"]
	if userID == "" {
		// Cannot attribute the event to a user; keep the raw event, touch nothing.
		utils.LogError(nil, "Subscription event without user_id metadata")
		h.ledgerEvent(c, event, nil)
		return
	}

	periodEnd := sub.CurrentPeriodEnd
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		periodEnd = sub.Items.Data[0].CurrentPeriodEnd
	}

	state := stateFromSubscription(sub.Status, periodEnd, sub.TrialEnd, rawCustomerID(sub.Customer), sub.Metadata["plan_id"])
	if err := h.entitlements.ApplyPremiumState(userID, state); err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to apply premium state from subscription event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}

	h.ledgerEvent(c, event, &userID)
}

// alreadySeen answers the pre-mutation duplicate check. The authoritative
// fence is the conditional insert in ledgerEvent; this is the fast path.
func (h *Handler) alreadySeen(c *gin.Context, eventID string) (duplicate bool, failed bool) {
	if h.ledger == nil || h.db == nil {
		return false, false
	}
	seen, err := h.ledger.SeenEvent(eventID)
	if err != nil {
		utils.LogError(err, "Failed to check the event ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return false, true
	}
	if seen {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return true, false
	}
	return false, false
}

func (h *Handler) ledgerEvent(c *gin.Context, event stripe.Event, userID *string) {
	if h.ledger != nil && h.db != nil {
		if _, err := h.ledger.RecordProviderEvent(event.ID, userID, string(event.Type), event.Data.Raw); err != nil {
			utils.LogError(err, "Failed to ledger a billing event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// stateFromSubscription maps a subscription snapshot onto the canonical
// premium state. Expiry and trial are only carried while access is on, so a
// deleted subscription fully clears the record.
func stateFromSubscription(status string, periodEnd, trialEnd int64, customerID, planID string) entitlements.PremiumState {
	active := activeSubscriptionStatuses[status]

	state := entitlements.PremiumState{IsActive: active}
	if active {
		if periodEnd > 0 {
			t := time.Unix(periodEnd, 0)
			state.ExpiresAt = &t
		}
		if trialEnd > 0 {
			t := time.Unix(trialEnd, 0)
			state.TrialEndsAt = &t
		}
		source := models.SourceStripe
		state.Source = &source
	}
	if customerID != "" {
		state.CustomerID = &customerID
	}
	if planID != "" {
		state.PlanID = &planID
	}
	return state
}

func retrievedPeriodEnd(sub *stripe.Subscription) int64 {
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		return sub.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

func customerIDOf(sub *stripe.Subscription) string {
	if sub.Customer != nil {
		return sub.Customer.ID
	}
	return ""
}

// rawCustomerID accepts both the string and expanded-object customer shapes.
func rawCustomerID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
