package routes

import (
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/db"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/handlers/billing"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/middleware"

	"github.com/gin-gonic/gin"
)

func BillingRoutes(v1 *gin.RouterGroup, cfg *config.Config, ent *entitlements.Service, ldg *ledger.Service) {
	handler := billing.New(cfg, db.DB, ent, ldg)

	billingRoutes := v1.Group("/billing")
	{
		billingRoutes.POST("/portal", middleware.JWTAuth(cfg), handler.HandlePortal)
		// Authenticated by the provider signature, not a user token.
		billingRoutes.POST("/webhook", handler.HandleWebhook)
	}
}
