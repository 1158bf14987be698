package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

//
// --- Cart Handlers ---
//

// AddToCartInput defines the JSON for adding a book to the cart.
type AddToCartInput struct {
	BookID   int64 `json:"book_id" binding:"required,gt=0"`
	Quantity int   `json:"quantity" binding:"required,gt=0"`
}

// AddToCart is the handler for POST /v1/carts. Adding a book that is already
// in the cart increases its quantity.
func (h *Handlers) AddToCart(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input AddToCartInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Carts.AddItem(c.Request.Context(), userID, input.BookID, input.Quantity); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Item added to cart"})
}

// GetCart is the handler for GET /v1/carts.
func (h *Handlers) GetCart(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	cart, err := h.Carts.List(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// UpdateCartItemInput defines the JSON for changing a line's quantity.
type UpdateCartItemInput struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// UpdateCartItem is the handler for PUT /v1/carts/:cartItemId.
func (h *Handlers) UpdateCartItem(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	cartItemID, err := idParam(c, "cartItemId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input UpdateCartItemInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Carts.UpdateQuantity(c.Request.Context(), userID, cartItemID, input.Quantity); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

// RemoveCartItem is the handler for DELETE /v1/carts/:cartItemId.
func (h *Handlers) RemoveCartItem(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	cartItemID, err := idParam(c, "cartItemId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Carts.Remove(c.Request.Context(), userID, cartItemID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}
