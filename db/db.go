package db

import (
	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB connects to Postgres and migrates the schema. In permissive-local
// mode a missing DATABASE_URL leaves DB nil and the entitlement layer fails
// open; in strict mode it is a startup error.
func InitDB(cfg *config.Config) {
	if cfg.DatabaseURL == "" {
		if cfg.Mode == config.ModeStrict {
			utils.LogError(nil, "DATABASE_URL is not set")
			panic("database URL not configured in strict mode")
		}
		utils.LogInfo("DATABASE_URL not set, running without persistence (permissive-local mode)")
		return
	}

	var err error
	DB, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: utils.GetGormLogger(),
	})
	if err != nil {
		utils.LogError(err, "Error connecting to the database")
		panic("Could not connect to the database")
	}

	err = DB.AutoMigrate(
		&models.Profile{},
		&models.UsageLog{},
		&models.PremiumEvent{},
		&models.Streak{},
	)
	if err != nil {
		utils.LogError(err, "Error migrating database")
		panic("Could not migrate database")
	}

	utils.LogSuccess("Database connection successful")
}

// Available reports whether the canonical store can be used.
func Available() bool {
	return DB != nil
}
