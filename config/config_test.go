package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveMode_ExplicitModeWins(t *testing.T) {
	t.Setenv("APP_MODE", "strict")
	t.Setenv("APP_ENV", "development")
	assert.Equal(t, ModeStrict, resolveMode())

	t.Setenv("APP_MODE", "permissive-local")
	t.Setenv("APP_ENV", "production")
	assert.Equal(t, ModePermissiveLocal, resolveMode())
}

func TestResolveMode_ProductionImpliesStrict(t *testing.T) {
	t.Setenv("APP_MODE", "")
	t.Setenv("APP_ENV", "production")
	assert.Equal(t, ModeStrict, resolveMode())
}

func TestResolveMode_DefaultsToPermissiveLocal(t *testing.T) {
	t.Setenv("APP_MODE", "")
	t.Setenv("APP_ENV", "")
	assert.Equal(t, ModePermissiveLocal, resolveMode())
}

func TestResolveMode_UnknownValueFallsThrough(t *testing.T) {
	t.Setenv("APP_MODE", "something-else")
	t.Setenv("APP_ENV", "production")
	assert.Equal(t, ModeStrict, resolveMode())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APP_MODE", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("STRIPE_SUCCESS_URL", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ModePermissiveLocal, cfg.Mode)
	assert.Contains(t, cfg.StripeSuccessURL, "{CHECKOUT_SESSION_ID}")
}
