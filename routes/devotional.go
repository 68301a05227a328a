package routes

import (
	"time"

	"github.com/djangamane/sba-ISM/assistant"
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/handlers/devotional"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/middleware"

	"github.com/gin-gonic/gin"
)

func DevotionalRoutes(v1 *gin.RouterGroup, cfg *config.Config, limiter *middleware.RateLimiter, responder assistant.Responder, ent *entitlements.Service, ldg *ledger.Service) {
	handler := devotional.New(responder, ent, ldg)

	devotionalRoutes := v1.Group("/devotional")
	devotionalRoutes.Use(middleware.JWTAuth(cfg))
	devotionalRoutes.Use(limiter.Limit("devotional", 10, 10*time.Minute))
	{
		devotionalRoutes.POST("", handler.HandleDevotional)
	}
}
