package routes

import (
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/handlers/receipts"
	"github.com/djangamane/sba-ISM/ledger"

	"github.com/gin-gonic/gin"
)

func ReceiptsRoutes(v1 *gin.RouterGroup, cfg *config.Config, ent *entitlements.Service, ldg *ledger.Service) {
	handler := receipts.New(cfg, ent, ldg)

	// Authenticated by the shared secret header, not a user token.
	v1.POST("/receipts/webhook", handler.HandleWebhook)
}
