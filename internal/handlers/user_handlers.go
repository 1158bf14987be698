package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/users"
)

// refreshCookie carries the refresh token; it is scoped to the auth routes.
const (
	refreshCookie     = "refreshToken"
	refreshCookiePath = "/v1/auth"
)

//
// --- Auth Handlers ---
//

// RegisterUserInput holds the *input* from the user. It is separate from
// models.User because we never accept an id or a role at sign-up.
type RegisterUserInput struct {
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required,min=8,max=72"`
	Name        string  `json:"name" binding:"required,max=100"`
	Address     *string `json:"address" binding:"omitempty,max=255"`
	PhoneNumber *string `json:"phone_number" binding:"omitempty,max=30"`
}

// Register is the handler for POST /v1/auth/register.
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterUserInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	// 2. --- Create the user (password hashed by the service) ---
	userID, err := h.Users.Register(c.Request.Context(), users.RegisterInput{
		Email:       input.Email,
		Password:    input.Password,
		Name:        input.Name,
		Address:     input.Address,
		PhoneNumber: input.PhoneNumber,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id": userID,
		"message": "User registered successfully.",
	})
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login is the handler for POST /v1/auth/login. The access token is
// returned in the body and the refresh token in an HttpOnly cookie.
func (h *Handlers) Login(c *gin.Context) {
	var input LoginInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	session, err := h.Users.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken, session.RefreshExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"message":      "Login successful",
		"access_token": session.AccessToken,
		"user":         session.User,
	})
}

// RefreshToken is the handler for POST /v1/auth/refresh. The refresh token is
// rotated on every call.
func (h *Handlers) RefreshToken(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		_ = c.Error(apperr.BadRequest("Refresh token is missing."))
		return
	}

	session, err := h.Users.Refresh(c.Request.Context(), token)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			h.clearRefreshCookie(c)
		}
		_ = c.Error(err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken, session.RefreshExpiresAt)
	c.JSON(http.StatusOK, gin.H{"access_token": session.AccessToken})
}

// Logout is the handler for POST /v1/auth/logout.
func (h *Handlers) Logout(c *gin.Context) {
	if token, err := c.Cookie(refreshCookie); err == nil && token != "" {
		if err := h.Users.Logout(c.Request.Context(), token); err != nil {
			_ = c.Error(err)
			return
		}
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handlers) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, token, maxAge, refreshCookiePath, "", h.SecureCookies, true)
}

func (h *Handlers) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, "", -1, refreshCookiePath, "", h.SecureCookies, true)
}

//
// --- User Handlers ---
//

func actor(c *gin.Context) (users.Actor, error) {
	userID, role, err := caller(c)
	if err != nil {
		return users.Actor{}, err
	}
	return users.Actor{ID: userID, Role: role}, nil
}

// GetMe is the handler for GET /v1/users/me.
func (h *Handlers) GetMe(c *gin.Context) {
	who, err := actor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	u, err := h.Users.Get(c.Request.Context(), who, who.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ListUsers is the handler for GET /v1/admin/users.
func (h *Handlers) ListUsers(c *gin.Context) {
	list, err := h.Users.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetUser is the handler for GET /v1/users/:userId (self or admin).
func (h *Handlers) GetUser(c *gin.Context) {
	who, err := actor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := idParam(c, "userId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	u, err := h.Users.Get(c.Request.Context(), who, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateUserInput holds the profile fields a user may change. Omitted
// fields keep their value.
type UpdateUserInput struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Address     *string `json:"address" binding:"omitempty,max=255"`
	PhoneNumber *string `json:"phone_number" binding:"omitempty,max=30"`
	Password    *string `json:"password" binding:"omitempty,min=8,max=72"`
}

// UpdateUser is the handler for PUT /v1/users/:userId (self or admin).
func (h *Handlers) UpdateUser(c *gin.Context) {
	who, err := actor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := idParam(c, "userId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input UpdateUserInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	u, err := h.Users.Update(c.Request.Context(), who, id, users.UpdateInput{
		Name:        input.Name,
		Address:     input.Address,
		PhoneNumber: input.PhoneNumber,
		Password:    input.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// DeleteUser is the handler for DELETE /v1/users/:userId. Users can only
// close their own account.
func (h *Handlers) DeleteUser(c *gin.Context) {
	who, err := actor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := idParam(c, "userId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Users.Delete(c.Request.Context(), who, id); err != nil {
		_ = c.Error(err)
		return
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

type UpdateRoleInput struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// UpdateUserRole is the handler for PATCH /v1/admin/users/:userId/role.
func (h *Handlers) UpdateUserRole(c *gin.Context) {
	who, err := actor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := idParam(c, "userId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input UpdateRoleInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Users.UpdateRole(c.Request.Context(), who, id, input.Role); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id, "role": input.Role})
}
