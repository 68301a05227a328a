package devotional

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/djangamane/sba-ISM/assistant"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
)

const devotionalInstructions = `Compose a 180-220 word devotional reflection. Structure:
- Begin with a warm, empathetic tone referencing the provided verse.
- Offer Neville Goddard-aligned insight that bridges scripture with imagination/assumption.
- Provide one actionable practice or affirmation for the reader today.
- Close with a short, hopeful encouragement (no generic sign-off).`

type Handler struct {
	assistant    assistant.Responder
	entitlements *entitlements.Service
	ledger       *ledger.Service
}

func New(responder assistant.Responder, ent *entitlements.Service, ldg *ledger.Service) *Handler {
	return &Handler{assistant: responder, entitlements: ent, ledger: ldg}
}

type persona struct {
	Goal        string   `json:"goal"`
	Familiarity string   `json:"familiarity"`
	Preferences []string `json:"preferences"`
}

type devotionalRequest struct {
	VerseText      string   `json:"verseText"`
	VerseReference string   `json:"verseReference"`
	Persona        *persona `json:"persona"`
}

// HandleDevotional generates a personalized devotional for a verse
// @Summary Generate a devotional
// @Description Builds a devotional reflection for the given verse, shaped by the user's onboarding persona. Free-tier users get one per day.
// @Tags devotional
// @Accept json
// @Produce json
// @Param body body devotionalRequest true "Verse and optional persona"
// @Security BearerAuth
// @Success 200 {object} map[string]string "devotional, userId"
// @Failure 400 {object} map[string]string "error: verse fields missing"
// @Failure 402 {object} map[string]string "error, code: PAYWALL"
// @Failure 503 {object} map[string]string "error: assistant not configured"
// @Failure 500 {object} map[string]string "error: assistant failure"
// @Router /v1/devotional [post]
func (h *Handler) HandleDevotional(c *gin.Context) {
	userID := c.GetString("user_id")

	access := h.entitlements.EnsureAccess(userID, entitlements.ActionDevotional)
	if !access.Allowed {
		message := access.Message
		if message == "" {
			message = "Upgrade required to continue."
		}
		c.JSON(http.StatusPaymentRequired, gin.H{"error": message, "code": "PAYWALL"})
		return
	}

	var req devotionalRequest
	_ = c.ShouldBindJSON(&req)
	if req.VerseText == "" || req.VerseReference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "`verseText` and `verseReference` are required"})
		return
	}

	if !h.assistant.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant credentials are not configured on the server."})
		return
	}

	// A devotional is a one-shot generation, so every request gets a fresh thread.
	prompt := buildPrompt(req)
	devotionalText, _, err := h.assistant.Converse(c.Request.Context(), "", prompt)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Assistant conversation failed in HandleDevotional")
		if errors.Is(err, assistant.ErrEmptyResponse) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Assistant returned an empty devotional."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.ledger.RecordUsage(userID, entitlements.ActionDevotional)
	utils.LogSuccessWithUser(userID, "Devotional delivered in HandleDevotional")

	c.JSON(http.StatusOK, gin.H{
		"devotional": devotionalText,
		"userId":     userID,
	})
}

func buildPrompt(req devotionalRequest) string {
	var personaParts []string
	if req.Persona != nil {
		if req.Persona.Goal != "" {
			personaParts = append(personaParts, fmt.Sprintf("User goal: %s.", req.Persona.Goal))
		}
		if req.Persona.Familiarity != "" {
			personaParts = append(personaParts, fmt.Sprintf("Neville familiarity: %s.", req.Persona.Familiarity))
		}
		if len(req.Persona.Preferences) > 0 {
			personaParts = append(personaParts, fmt.Sprintf("Preferred tone/content: %s.", strings.Join(req.Persona.Preferences, ", ")))
		}
	}
	personaSummary := strings.Join(personaParts, " ")

	return fmt.Sprintf("Verse: %s\nText: %s\n%s\n%s",
		req.VerseReference, req.VerseText, personaSummary, devotionalInstructions)
}
