package routes

import (
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/db"
	"github.com/djangamane/sba-ISM/handlers/profile"
	"github.com/djangamane/sba-ISM/middleware"

	"github.com/gin-gonic/gin"
)

func ProfileRoutes(v1 *gin.RouterGroup, cfg *config.Config) {
	handler := profile.New(db.DB)

	profileRoutes := v1.Group("/profile")
	profileRoutes.Use(middleware.JWTAuth(cfg))
	{
		profileRoutes.GET("", handler.HandleGetProfile)
	}
}
