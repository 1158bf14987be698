package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/01moynul/bookmarket-golang/internal/ai"
	"github.com/01moynul/bookmarket-golang/internal/auth"
	"github.com/01moynul/bookmarket-golang/internal/carts"
	"github.com/01moynul/bookmarket-golang/internal/catalog"
	"github.com/01moynul/bookmarket-golang/internal/config"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/handlers"
	"github.com/01moynul/bookmarket-golang/internal/middleware"
	"github.com/01moynul/bookmarket-golang/internal/orders"
	"github.com/01moynul/bookmarket-golang/internal/reviews"
	"github.com/01moynul/bookmarket-golang/internal/routes"
	"github.com/01moynul/bookmarket-golang/internal/users"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// 0. --- Load Environment Variables (.env) ---
	if err := godotenv.Load(); err != nil {
		slog.Warn("could not load .env file, relying on system environment variables")
	}
	cfg := config.Load()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. --- Main Database Connection (Read/Write) ---
	if err := database.RunMigrations(cfg.DBDSNPrimary, cfg.MigrationsPath); err != nil {
		slog.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}
	db, err := database.OpenDB(cfg.DBDSNPrimary)
	if err != nil {
		slog.Error("failed to connect to primary database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// 2. --- Assistant Database Connection (Read-Only) ---
	dbReadOnly := db
	if cfg.DBDSNReadOnly != "" {
		dbReadOnly, err = database.OpenDB(cfg.DBDSNReadOnly)
		if err != nil {
			slog.Error("failed to connect to read-only database", "err", err)
			os.Exit(1)
		}
		defer dbReadOnly.Close()
	}

	// 3. --- Services ---
	tokens := auth.NewTokenIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	orderService := orders.New(db)
	userService := users.New(db, tokens)

	app := &handlers.Handlers{
		Orders:        orderService,
		Carts:         carts.New(db),
		Catalog:       catalog.New(db, cfg.DefaultPageLimit, cfg.NewBooksLimit),
		Reviews:       reviews.New(db),
		Users:         userService,
		SecureCookies: cfg.IsProduction(),
	}

	// 4. --- AI Service Initialization (optional) ---
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY is not set, assistant disabled")
	} else {
		if cfg.DBDSNReadOnly == "" {
			slog.Warn("DB_DSN_READONLY is not set, assistant queries use the primary pool")
		}
		assistant, err := ai.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, dbReadOnly, db)
		if err != nil {
			slog.Error("failed to initialize assistant", "err", err)
			os.Exit(1)
		}
		defer assistant.Close()
		app.Assistant = assistant
	}

	// 5. --- Background Workers ---
	if cfg.OrderPaymentWindow > 0 {
		go runEvery(ctx, "cancel-unpaid-orders", cfg.SweepInterval, func(ctx context.Context) (int64, error) {
			return orderService.CancelStalePending(ctx, cfg.OrderPaymentWindow)
		})
	}
	go runEvery(ctx, "cleanup-refresh-tokens", cfg.TokenCleanupInterval, userService.CleanupExpiredTokens)

	// --- Router Setup ---
	router := routes.SetupRouter(app, routes.Options{
		Tokens:       tokens,
		Roles:        middleware.DBRoleLookup(db),
		AllowOrigins: cfg.CORSAllowOrigins,
	})

	// --- Start Server ---
	if err := serve(ctx, db, ":"+cfg.Port, router); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, db *sql.DB, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting bookmarket API server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped", "open_connections", db.Stats().OpenConnections)
	return nil
}

// runEvery calls job on every tick until ctx is cancelled.
func runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context) (int64, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("background worker started", "worker", name, "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := job(ctx)
			if err != nil {
				slog.Error("background worker failed", "worker", name, "err", err)
				continue
			}
			if n > 0 {
				slog.Info("background worker done", "worker", name, "affected", n)
			}
		}
	}
}
