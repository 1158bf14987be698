package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/auth"
	"github.com/01moynul/bookmarket-golang/internal/handlers"
	"github.com/01moynul/bookmarket-golang/internal/middleware"
)

// Options carries what the router needs besides the handlers.
type Options struct {
	Tokens       *auth.TokenIssuer
	Roles        middleware.RoleLookup
	AllowOrigins []string
}

func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func SetupRouter(h *handlers.Handlers, opts Options) *gin.Engine {
	router := gin.New()

	// Request id first so every later log line carries it; CORS before the
	// error handler so preflights never reach a handler.
	router.Use(
		middleware.RequestID(),
		middleware.Slog(),
		gin.Recovery(),
		cors.New(corsConfig(opts.AllowOrigins)),
		middleware.ErrorHandler(),
	)

	requireAuth := middleware.AuthMiddleware(opts.Tokens)
	// Routes where an admin may act on someone else's data read the stored role.
	storedRole := middleware.ResolveRole(opts.Roles)

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Auth Routes (Public) ---
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", h.Register)
			authRoutes.POST("/login", h.Login)
			authRoutes.POST("/refresh", h.RefreshToken)
			authRoutes.POST("/logout", h.Logout)
		}

		// --- Catalog Routes (Public) ---
		v1.GET("/categories", h.GetCategories)
		v1.GET("/books", h.ListBooks)
		v1.GET("/books/:bookId", middleware.OptionalAuth(opts.Tokens), h.GetBook)
		v1.GET("/books/:bookId/reviews", h.GetBookReviews)

		// --- Protected Routes (Login Required) ---
		protected := v1.Group("/")
		protected.Use(requireAuth)
		{
			protected.GET("/users/me", h.GetMe)
			protected.GET("/users/:userId", storedRole, h.GetUser)
			protected.PUT("/users/:userId", storedRole, h.UpdateUser)
			protected.DELETE("/users/:userId", storedRole, h.DeleteUser)

			protected.POST("/books/:bookId/like", h.ToggleBookLike)
			protected.POST("/books/:bookId/reviews", h.CreateReview)
			protected.PUT("/reviews/:reviewId", h.UpdateReview)
			protected.DELETE("/reviews/:reviewId", storedRole, h.DeleteReview)
			protected.POST("/reviews/:reviewId/like", h.ToggleReviewLike)

			protected.POST("/carts", h.AddToCart)
			protected.GET("/carts", h.GetCart)
			protected.PUT("/carts/:cartItemId", h.UpdateCartItem)
			protected.DELETE("/carts/:cartItemId", h.RemoveCartItem)

			protected.POST("/orders", h.PlaceOrder)
			protected.GET("/orders", h.GetMyOrders)
			protected.GET("/orders/:orderId", storedRole, h.GetOrderDetail)

			// --- AI Chat Route ---
			if h.Assistant != nil {
				protected.POST("/assistant/chat", h.ChatAI)
			}
		}

		// --- Admin-Only Routes ---
		admin := v1.Group("/admin")
		admin.Use(requireAuth, middleware.AdminMiddleware(opts.Roles))
		{
			admin.GET("/users", h.ListUsers)
			admin.PATCH("/users/:userId/role", h.UpdateUserRole)
			admin.POST("/categories", h.CreateCategory)
			admin.PATCH("/orders/:orderId/status", h.UpdateOrderStatus)
			admin.GET("/dashboard-stats", h.GetOrderStats)
		}
	}

	return router
}
