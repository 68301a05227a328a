package routes

import (
	"time"

	"github.com/djangamane/sba-ISM/assistant"
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/handlers/chat"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/middleware"

	"github.com/gin-gonic/gin"
)

func ChatRoutes(v1 *gin.RouterGroup, cfg *config.Config, limiter *middleware.RateLimiter, responder assistant.Responder, ent *entitlements.Service, ldg *ledger.Service) {
	handler := chat.New(responder, ent, ldg)

	chatRoutes := v1.Group("/chat")
	chatRoutes.Use(middleware.JWTAuth(cfg))
	chatRoutes.Use(limiter.Limit("chat", 30, time.Minute))
	{
		chatRoutes.POST("", handler.HandleChat)
	}
}
