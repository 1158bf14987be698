package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/auth"
)

const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// AuthMiddleware rejects requests without a valid Bearer access token and
// stores the caller's id and role on the context.
func AuthMiddleware(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		tokenString, err := bearerToken(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		// 2. --- Validate Token ---
		claims, err := tokens.ValidateAccessToken(tokenString)
		if err != nil {
			_ = c.Error(apperr.Unauthorized("Invalid or expired token"))
			c.Abort()
			return
		}

		// 3. --- Success ---
		if err := setCaller(c, claims); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth behaves like AuthMiddleware when a token is present and lets
// anonymous requests through otherwise. A present but invalid token is still rejected.
func OptionalAuth(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		AuthMiddleware(tokens)(c)
	}
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", apperr.Unauthorized("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperr.Unauthorized("Invalid token format (must be Bearer)")
	}
	return parts[1], nil
}

func setCaller(c *gin.Context, claims *auth.Claims) error {
	userID, err := claims.UserID()
	if err != nil || userID <= 0 {
		return apperr.Unauthorized("Invalid or expired token")
	}
	c.Set(ContextUserID, userID)
	c.Set(ContextUserRole, claims.Role)
	return nil
}

// CurrentUser returns the id and role stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (userID int64, role string, ok bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, "", false
	}
	userID, ok = v.(int64)
	role = c.GetString(ContextUserRole)
	return userID, role, ok
}
