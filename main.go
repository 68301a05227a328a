package main

import (
	"log"

	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/db"
	_ "github.com/djangamane/sba-ISM/docs"
	"github.com/djangamane/sba-ISM/routes"
	"github.com/djangamane/sba-ISM/utils"

	"github.com/gin-gonic/gin"
)

// @title Spiritual Bible Chat API
// @version 0.1.0
// @description Backend-for-frontend gateway for the devotional/chat mobile app
// @host localhost:8080
// @BasePath /api
// @SecurityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the access token with the Bearer prefix: Bearer <token>
func main() {

	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = utils.LogWriter()

	cfg := config.Load()
	utils.LogInfo("Starting in " + string(cfg.Mode) + " mode")

	db.InitDB(cfg)

	r := routes.SetupRouter(cfg)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Error starting the server:", err)
	}
}
