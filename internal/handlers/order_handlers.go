package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/models"
	"github.com/01moynul/bookmarket-golang/internal/orders"
)

//
// --- Order Handlers ---
//

// PlaceOrderInput defines the JSON for POST /v1/orders.
type PlaceOrderInput struct {
	DeliveryInfo      *models.DeliveryInfo `json:"delivery_info"`
	UseDefaultAddress bool                 `json:"use_default_address"`
	CartItemIDs       []int64              `json:"cart_item_ids" binding:"required,min=1"`
}

// PlaceOrder is the handler for POST /v1/orders.
func (h *Handlers) PlaceOrder(c *gin.Context) {
	// 1. --- Get User ID ---
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// 2. --- Bind & Validate JSON ---
	var input PlaceOrderInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	// 3. --- Checkout ---
	orderID, err := h.Orders.PlaceOrder(c.Request.Context(), orders.PlaceOrderInput{
		UserID:      userID,
		CartItemIDs: input.CartItemIDs,
		Delivery: orders.DeliveryRequest{
			Info:              input.DeliveryInfo,
			UseDefaultAddress: input.UseDefaultAddress,
		},
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id": orderID,
		"message":  "Order placed successfully.",
	})
}

// GetMyOrders is the handler for GET /v1/orders.
func (h *Handlers) GetMyOrders(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	list, err := h.Orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetOrderDetail is the handler for GET /v1/orders/:orderId.
func (h *Handlers) GetOrderDetail(c *gin.Context) {
	userID, role, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	orderID, err := idParam(c, "orderId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	detail, err := h.Orders.GetOrderDetail(c.Request.Context(), orderID, orders.Requester{ID: userID, Role: role})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateOrderStatusInput defines the JSON for PATCH /v1/admin/orders/:orderId/status.
type UpdateOrderStatusInput struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// UpdateOrderStatus is the handler for PATCH /v1/admin/orders/:orderId/status.
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	orderID, err := idParam(c, "orderId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var input UpdateOrderStatusInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Orders.UpdateStatus(c.Request.Context(), orderID, input.Status); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": input.Status})
}
