package receipts

import (
	"crypto/subtle"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"encoding/json"

	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
)

// Canonical entitlement identifiers, checked in priority order before the
// is_active fallback. A canonical match wins even when it is expired; the
// expiry then decides is_active. Documented precedence, kept as-is.
var entitlementCandidates = []string{"premium", "premium_monthly", "premium_annual"}

type receiptEntitlement struct {
	ProductIdentifier      string  `json:"product_identifier"`
	ExpiresDate            *string `json:"expires_date"`
	GracePeriodExpiresDate *string `json:"grace_period_expires_date"`
	TrialEndsAt            *string `json:"trial_ends_at"`
	PurchaseDate           *string `json:"purchase_date"`
	IsActive               bool    `json:"is_active"`
}

type receiptEvent struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	AppUserID      string `json:"app_user_id"`
	PeriodType     string `json:"period_type"`
	Environment    string `json:"environment"`
	Store          string `json:"store"`
	ExpiresAtMs    int64  `json:"expires_at_ms"`
	ExpirationAtMs int64  `json:"expiration_at_ms"`
}

// receiptPayload is the explicit envelope this adapter accepts from the
// receipt validator. Unknown fields are ignored; unknown shapes are rejected
// by the field checks below rather than accessed optimistically.
type receiptPayload struct {
	Event      *receiptEvent `json:"event"`
	Subscriber *struct {
		Entitlements map[string]*receiptEntitlement `json:"entitlements"`
	} `json:"subscriber"`
}

type Handler struct {
	cfg          *config.Config
	entitlements *entitlements.Service
	ledger       *ledger.Service
	now          func() time.Time
}

func New(cfg *config.Config, ent *entitlements.Service, ldg *ledger.Service) *Handler {
	return &Handler{cfg: cfg, entitlements: ent, ledger: ldg, now: time.Now}
}

// HandleWebhook terminates the receipt validator's webhook
// @Summary Receipt validator webhook
// @Description Authenticates the shared secret, reconciles the entitlement snapshot into the premium record and ledgers the event id.
// @Tags receipts
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "processed, userId, isActive, expiresAt"
// @Failure 401 {object} map[string]string "error: invalid webhook authorization"
// @Failure 501 {object} map[string]string "error: webhook secret not configured"
// @Failure 500 {object} map[string]string "error"
// @Router /v1/receipts/webhook [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	if h.cfg.RevenueCatWebhookSecret == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "RevenueCat webhook secret not configured."})
		return
	}

	provided := c.GetHeader("X-Authorization")
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.cfg.RevenueCatWebhookSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook authorization."})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}

	var payload receiptPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse the webhook payload"})
		return
	}

	if !h.entitlements.StoreAvailable() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}

	if payload.Event == nil || payload.Event.ID == "" {
		c.JSON(http.StatusOK, gin.H{"processed": false, "reason": "missing_event_id"})
		return
	}
	userID := payload.Event.AppUserID
	if userID == "" {
		c.JSON(http.StatusOK, gin.H{"processed": false, "reason": "missing_app_user_id"})
		return
	}

	seen, err := h.ledger.SeenEvent(payload.Event.ID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to check the event ledger in the receipts webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}
	if seen {
		c.JSON(http.StatusOK, gin.H{"processed": false, "reason": "duplicate_event", "userId": userID})
		return
	}

	var entl *receiptEntitlement
	if payload.Subscriber != nil {
		entl = selectEntitlement(payload.Subscriber.Entitlements)
	}

	expiresAt := determineExpiry(payload.Event, entl)
	trialEndsAt := determineTrialEnd(payload.Event, entl, expiresAt)

	isActive := entl != nil && (expiresAt == nil || expiresAt.After(h.now()))

	state := entitlements.PremiumState{
		IsActive:    isActive,
		ExpiresAt:   expiresAt,
		TrialEndsAt: trialEndsAt,
	}
	if isActive {
		source := models.SourceRevenueCat
		state.Source = &source
	}

	if err := h.entitlements.ApplyPremiumState(userID, state); err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to apply premium state in the receipts webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}

	eventType := payload.Event.Type
	if eventType == "" {
		eventType = "unknown"
	}
	inserted, err := h.ledger.RecordProviderEvent(payload.Event.ID, &userID, eventType, body)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to ledger a receipt event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook."})
		return
	}
	if !inserted {
		// A concurrent delivery won the insert; the overwrite above was identical.
		c.JSON(http.StatusOK, gin.H{"processed": false, "reason": "duplicate_event", "userId": userID})
		return
	}

	utils.LogSuccessWithUser(userID, "Receipt event reconciled")
	c.JSON(http.StatusOK, gin.H{
		"processed": true,
		"userId":    userID,
		"isActive":  isActive,
		"expiresAt": expiresAt,
	})
}

// selectEntitlement prefers the canonical identifiers in order, then falls
// back to the first active entry (alphabetical, for determinism).
func selectEntitlement(entitlements map[string]*receiptEntitlement) *receiptEntitlement {
	if len(entitlements) == 0 {
		return nil
	}

	for _, candidate := range entitlementCandidates {
		if match, ok := entitlements[candidate]; ok && match != nil {
			return match
		}
	}

	keys := make([]string, 0, len(entitlements))
	for key := range entitlements {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if entry := entitlements[key]; entry != nil && entry.IsActive {
			return entry
		}
	}
	return nil
}

// determineExpiry resolves in priority order: event-level epoch millis,
// entitlement expires_date, entitlement grace-period expiry, none.
func determineExpiry(event *receiptEvent, entl *receiptEntitlement) *time.Time {
	if event != nil {
		ms := event.ExpiresAtMs
		if ms <= 0 {
			ms = event.ExpirationAtMs
		}
		if ms > 0 {
			t := time.UnixMilli(ms)
			return &t
		}
	}

	if entl != nil {
		if t := parseTimestamp(entl.ExpiresDate); t != nil {
			return t
		}
		if t := parseTimestamp(entl.GracePeriodExpiresDate); t != nil {
			return t
		}
	}
	return nil
}

// determineTrialEnd uses the explicit entitlement field when present; for
// trial or intro periods the resolved expiry doubles as the trial end.
func determineTrialEnd(event *receiptEvent, entl *receiptEntitlement, expiry *time.Time) *time.Time {
	if entl != nil {
		if t := parseTimestamp(entl.TrialEndsAt); t != nil {
			return t
		}
	}

	if event != nil {
		periodType := strings.ToLower(event.PeriodType)
		if periodType == "trial" || periodType == "intro" {
			return expiry
		}
	}
	return nil
}

func parseTimestamp(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}
	return &t
}
