package routes

import (
	"net/http"
	"time"

	"github.com/djangamane/sba-ISM/assistant"
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/db"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/handlers/ping"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetupRouter(cfg *config.Config) *gin.Engine {

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Authorization", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Client handles are built once here and injected into every handler.
	ldg := ledger.New(db.DB)
	ent := entitlements.New(db.DB, ldg, cfg.Mode)
	responder := assistant.New(cfg.OpenAIAPIKey, cfg.OpenAIAssistantID)
	limiter := middleware.NewRateLimiter()

	pingHandler := ping.New()
	r.GET("/", pingHandler.HandleRoot)

	api := r.Group("/api")
	api.GET("/health", pingHandler.HandleHealth)

	v1 := api.Group("/v1")
	ChatRoutes(v1, cfg, limiter, responder, ent, ldg)
	DevotionalRoutes(v1, cfg, limiter, responder, ent, ldg)
	PaywallRoutes(v1, cfg, ent, ldg)
	ProfileRoutes(v1, cfg)
	BillingRoutes(v1, cfg, ent, ldg)
	ReceiptsRoutes(v1, cfg, ent, ldg)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Path " + c.Request.URL.Path + " not found"})
	})

	return r
}
