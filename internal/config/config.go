package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// App holds everything main needs to wire the server. Values come from the
// environment (optionally seeded from a .env file by godotenv in main).
type App struct {
	Port string
	Env  string

	// Primary read/write pool and the read-only pool used by the assistant.
	DBDSNPrimary   string
	DBDSNReadOnly  string
	MigrationsPath string

	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CORSAllowOrigins []string

	GeminiAPIKey string
	GeminiModel  string

	// OrderPaymentWindow is how long an order may stay pending_payment before the
	// sweeper cancels it. Zero disables the sweeper.
	OrderPaymentWindow   time.Duration
	SweepInterval        time.Duration
	TokenCleanupInterval time.Duration

	DefaultPageLimit int
	NewBooksLimit    int
}

func Load() App {
	return App{
		Port:                 getenv("APP_PORT", "8080"),
		Env:                  getenv("APP_ENV", "dev"),
		DBDSNPrimary:         must("DB_DSN_PRIMARY"),
		DBDSNReadOnly:        os.Getenv("DB_DSN_READONLY"),
		MigrationsPath:       getenv("MIGRATIONS_PATH", "./migrations"),
		AccessSecret:         must("ACCESS_SECRET_KEY"),
		RefreshSecret:        must("REFRESH_SECRET_KEY"),
		AccessTokenTTL:       interval("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:      interval("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CORSAllowOrigins:     list("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		OrderPaymentWindow:   duration("ORDER_PAYMENT_WINDOW", 0),
		SweepInterval:        interval("ORDER_SWEEP_INTERVAL", time.Hour),
		TokenCleanupInterval: interval("TOKEN_CLEANUP_INTERVAL", 6*time.Hour),
		DefaultPageLimit:     integer("DEFAULT_PAGE_LIMIT", 10),
		NewBooksLimit:        integer("NEW_BOOKS_LIMIT", 8),
	}
}

func (a App) IsProduction() bool { return a.Env == "production" }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}

func duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def)
		return def
	}
	return d
}

// interval is a duration that must be positive; tickers and token lifetimes
// cannot be zero.
func interval(k string, def time.Duration) time.Duration {
	d := duration(k, def)
	if d <= 0 {
		slog.Warn("non-positive duration, using default", "key", k, "value", d, "default", def)
		return def
	}
	return d
}

func integer(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		slog.Warn("invalid integer, using default", "key", k, "value", v, "default", def)
		return def
	}
	return n
}

func list(k, def string) []string {
	var out []string
	for _, s := range strings.Split(getenv(k, def), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
