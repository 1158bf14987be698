package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DSN_PRIMARY", "root:pw@tcp(localhost:3306)/bookmarket?parseTime=true")
	t.Setenv("ACCESS_SECRET_KEY", "access")
	t.Setenv("REFRESH_SECRET_KEY", "refresh")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, time.Duration(0), cfg.OrderPaymentWindow)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowOrigins)
	assert.Equal(t, 10, cfg.DefaultPageLimit)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DSN_PRIMARY", "dsn")
	t.Setenv("ACCESS_SECRET_KEY", "access")
	t.Setenv("REFRESH_SECRET_KEY", "refresh")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("ORDER_PAYMENT_WINDOW", "48h")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEFAULT_PAGE_LIMIT", "not-a-number")
	t.Setenv("APP_ENV", "production")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 48*time.Hour, cfg.OrderPaymentWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.Equal(t, 10, cfg.DefaultPageLimit)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_MissingRequiredPanics(t *testing.T) {
	t.Setenv("DB_DSN_PRIMARY", "")
	assert.Panics(t, func() { Load() })
}

func TestLoad_NonPositiveIntervalsFallBack(t *testing.T) {
	t.Setenv("DB_DSN_PRIMARY", "dsn")
	t.Setenv("ACCESS_SECRET_KEY", "access")
	t.Setenv("REFRESH_SECRET_KEY", "refresh")
	t.Setenv("TOKEN_CLEANUP_INTERVAL", "0s")
	t.Setenv("ORDER_SWEEP_INTERVAL", "-5m")
	t.Setenv("ACCESS_TOKEN_TTL", "0")
	t.Setenv("ORDER_PAYMENT_WINDOW", "0s")

	cfg := Load()

	assert.Equal(t, 6*time.Hour, cfg.TokenCleanupInterval)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	// Zero still disables the unpaid order sweeper.
	assert.Equal(t, time.Duration(0), cfg.OrderPaymentWindow)

	assert.NotPanics(t, func() { time.NewTicker(cfg.TokenCleanupInterval).Stop() })
	assert.NotPanics(t, func() { time.NewTicker(cfg.SweepInterval).Stop() })
}
