package middleware

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

// RoleLookup returns the current role of a user.
type RoleLookup func(ctx context.Context, userID int64) (string, error)

// DBRoleLookup reads the role from the users table, ignoring soft-deleted users.
func DBRoleLookup(db *sql.DB) RoleLookup {
	return func(ctx context.Context, userID int64) (string, error) {
		var role string
		query := "SELECT role FROM users WHERE id = ? AND deleted_at IS NULL"
		err := db.QueryRowContext(ctx, query, userID).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.Unauthorized("Invalid user")
		}
		if err != nil {
			return "", apperr.Internalf(err, "query role of user %d", userID)
		}
		return role, nil
	}
}

// ResolveRole must run after AuthMiddleware. It replaces the role carried by
// the access token with the stored one, so handlers that grant admins extra
// rights see a demotion before the token expires.
func ResolveRole(lookup RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := storedRole(c, lookup); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware. The role is re-read from the
// store so a demoted admin loses access before their access token expires.
func AdminMiddleware(lookup RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := storedRole(c, lookup)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		if role != models.RoleAdmin {
			_ = c.Error(apperr.Forbidden("Access denied: Admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func storedRole(c *gin.Context, lookup RoleLookup) (string, error) {
	// 1. Get userID from AuthMiddleware
	userID, _, ok := CurrentUser(c)
	if !ok {
		return "", apperr.Unauthorized("Authentication required")
	}

	// 2. Query role
	role, err := lookup(c.Request.Context(), userID)
	if err != nil {
		return "", err
	}

	c.Set(ContextUserRole, role)
	return role, nil
}
