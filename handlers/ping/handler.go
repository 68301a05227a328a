package ping

import (
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct{}

func New() *Handler {
	return &Handler{}
}

// HandleHealth reports service liveness
// @Summary Health check
// @Description Returns ok when the API is up
// @Tags health
// @Produce json
// @Success 200 {object} utils.Response
// @Router /health [get]
func (h *Handler) HandleHealth(c *gin.Context) {
	utils.SendSuccess(c, 200, "Health check successful", gin.H{
		"status": "ok",
	})
}

// HandleRoot identifies the service
// @Summary Service identity
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (h *Handler) HandleRoot(c *gin.Context) {
	c.JSON(200, gin.H{
		"name":    "Spiritual Bible Chat Backend",
		"version": "0.1.0",
		"status":  "ready",
	})
}
