package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DeploymentMode controls how the server reacts to missing credentials.
// In permissive-local mode the entitlement and auth layers degrade to
// "allow" when their backing services are not configured; in strict mode
// they refuse the request instead.
type DeploymentMode string

const (
	ModeStrict          DeploymentMode = "strict"
	ModePermissiveLocal DeploymentMode = "permissive-local"
)

type Config struct {
	Port string
	Mode DeploymentMode

	DatabaseURL string
	JWTSecret   string

	OpenAIAPIKey      string
	OpenAIAssistantID string

	StripeSecretKey       string
	StripeWebhookSecret   string
	StripePriceMonthly    string
	StripePriceAnnual     string
	StripeSuccessURL      string
	StripeCancelURL       string
	StripePortalReturnURL string

	RevenueCatWebhookSecret string
}

// Load reads the environment once at startup. A missing .env file is not an
// error: deployed environments provide variables through the process env.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Mode:                    resolveMode(),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIAssistantID:       os.Getenv("OPENAI_ASSISTANT_ID"),
		StripeSecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceMonthly:      os.Getenv("STRIPE_PRICE_MONTHLY"),
		StripePriceAnnual:       os.Getenv("STRIPE_PRICE_ANNUAL"),
		StripeSuccessURL:        getEnv("STRIPE_SUCCESS_URL", "https://sba-ism.vercel.app/?session_id={CHECKOUT_SESSION_ID}"),
		StripeCancelURL:         getEnv("STRIPE_CANCEL_URL", "https://sba-ism.vercel.app/"),
		StripePortalReturnURL:   os.Getenv("STRIPE_PORTAL_RETURN_URL"),
		RevenueCatWebhookSecret: os.Getenv("REVENUECAT_WEBHOOK_SECRET"),
	}

	return cfg
}

// resolveMode picks the deployment mode explicitly rather than inferring it
// per-request from which credentials happen to be present. APP_MODE wins;
// otherwise APP_ENV=production implies strict.
func resolveMode() DeploymentMode {
	switch strings.ToLower(os.Getenv("APP_MODE")) {
	case string(ModeStrict):
		return ModeStrict
	case string(ModePermissiveLocal):
		return ModePermissiveLocal
	}
	if strings.ToLower(os.Getenv("APP_ENV")) == "production" {
		return ModeStrict
	}
	return ModePermissiveLocal
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
