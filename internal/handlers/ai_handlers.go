package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
)

// ChatInput defines the structure of the JSON request body.
type ChatInput struct {
	Message string `json:"message" binding:"required,max=2000"`
}

// ChatAI is the handler for POST /v1/assistant/chat.
func (h *Handlers) ChatAI(c *gin.Context) {
	// 1. --- Get User Context (set by AuthMiddleware) ---
	// The role decides which tables the assistant may read.
	userID, role, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if h.Assistant == nil {
		_ = c.Error(apperr.Unavailable("assistant is not configured", nil))
		return
	}

	// 2. --- Parse Input ---
	var input ChatInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	// 3. --- Ask (history is saved by the assistant) ---
	reply, err := h.Assistant.Ask(c.Request.Context(), userID, role, input.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, reply)
}
