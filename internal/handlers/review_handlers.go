package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/reviews"
)

//
// --- Review Handlers ---
//

// ReviewInput defines the JSON for creating or editing a review.
type ReviewInput struct {
	Content string `json:"content" binding:"required"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
}

// GetBookReviews is the handler for GET /v1/books/:bookId/reviews.
func (h *Handlers) GetBookReviews(c *gin.Context) {
	bookID, err := idParam(c, "bookId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	list, err := h.Reviews.ListByBook(c.Request.Context(), bookID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateReview is the handler for POST /v1/books/:bookId/reviews.
func (h *Handlers) CreateReview(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	bookID, err := idParam(c, "bookId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input ReviewInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	reviewID, err := h.Reviews.Create(c.Request.Context(), userID, bookID, reviews.Input{Content: input.Content, Rating: input.Rating})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"review_id": reviewID, "message": "Review created."})
}

// UpdateReview is the handler for PUT /v1/reviews/:reviewId.
func (h *Handlers) UpdateReview(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	reviewID, err := idParam(c, "reviewId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input ReviewInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Reviews.Update(c.Request.Context(), reviewID, userID, reviews.Input{Content: input.Content, Rating: input.Rating}); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"review_id": reviewID, "message": "Review updated."})
}

// DeleteReview is the handler for DELETE /v1/reviews/:reviewId.
func (h *Handlers) DeleteReview(c *gin.Context) {
	userID, role, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	reviewID, err := idParam(c, "reviewId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Reviews.Delete(c.Request.Context(), reviewID, userID, role); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleReviewLike is the handler for POST /v1/reviews/:reviewId/like.
func (h *Handlers) ToggleReviewLike(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	reviewID, err := idParam(c, "reviewId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	liked, err := h.Reviews.ToggleLike(c.Request.Context(), reviewID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"review_id": reviewID, "liked": liked})
}
