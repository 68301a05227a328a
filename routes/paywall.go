package routes

import (
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/handlers/paywall"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/middleware"

	"github.com/gin-gonic/gin"
)

func PaywallRoutes(v1 *gin.RouterGroup, cfg *config.Config, ent *entitlements.Service, ldg *ledger.Service) {
	handler := paywall.New(cfg, ent, ldg)

	paywallRoutes := v1.Group("/paywall")
	paywallRoutes.Use(middleware.JWTAuth(cfg))
	{
		paywallRoutes.POST("/grant-demo", handler.HandleGrantDemo)
		paywallRoutes.POST("/checkout", handler.HandleCheckout)
		paywallRoutes.POST("/log", handler.HandleLog)
	}
}
