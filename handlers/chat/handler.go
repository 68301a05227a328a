package chat

import (
	"errors"
	"net/http"

	"github.com/djangamane/sba-ISM/assistant"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	assistant    assistant.Responder
	entitlements *entitlements.Service
	ledger       *ledger.Service
}

func New(responder assistant.Responder, ent *entitlements.Service, ldg *ledger.Service) *Handler {
	return &Handler{assistant: responder, entitlements: ent, ledger: ldg}
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
}

// HandleChat forwards one user message to the assistant thread
// @Summary Send a chat message
// @Description Forwards the message to the conversational assistant and returns its reply. Free-tier users get a daily quota.
// @Tags chat
// @Accept json
// @Produce json
// @Param body body chatRequest true "Message and optional thread id"
// @Security BearerAuth
// @Success 200 {object} map[string]string "message, threadId, userId"
// @Failure 400 {object} map[string]string "error: message missing"
// @Failure 402 {object} map[string]string "error, code: PAYWALL"
// @Failure 503 {object} map[string]string "error: assistant not configured"
// @Failure 500 {object} map[string]string "error: assistant failure"
// @Router /v1/chat [post]
func (h *Handler) HandleChat(c *gin.Context) {
	userID := c.GetString("user_id")

	access := h.entitlements.EnsureAccess(userID, entitlements.ActionChat)
	if !access.Allowed {
		message := access.Message
		if message == "" {
			message = "Upgrade required to continue."
		}
		c.JSON(http.StatusPaymentRequired, gin.H{"error": message, "code": "PAYWALL"})
		return
	}

	var req chatRequest
	_ = c.ShouldBindJSON(&req)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "`message` is required in request body"})
		return
	}

	if !h.assistant.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant credentials are not configured on the server."})
		return
	}

	reply, threadID, err := h.assistant.Converse(c.Request.Context(), req.ThreadID, req.Message)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Assistant conversation failed in HandleChat")
		if errors.Is(err, assistant.ErrEmptyResponse) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Assistant returned an empty response.", "threadId": threadID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "threadId": threadID})
		return
	}

	h.ledger.RecordUsage(userID, entitlements.ActionChat)
	utils.LogSuccessWithUser(userID, "Chat reply delivered in HandleChat")

	c.JSON(http.StatusOK, gin.H{
		"message":  reply,
		"threadId": threadID,
		"userId":   userID,
	})
}
