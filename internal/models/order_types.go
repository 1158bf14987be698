package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state stored in orders.status.
type OrderStatus string

const (
	OrderStatusPendingPayment    OrderStatus = "pending_payment"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusPreparingShipment OrderStatus = "preparing_shipment"
	OrderStatusShipping          OrderStatus = "shipping"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:              {OrderStatusPreparingShipment, OrderStatusCancelled},
	OrderStatusPreparingShipment: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:          {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusPreparingShipment,
		OrderStatusShipping, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an admin may move an order from s to next.
// Delivered and cancelled are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeliveryInfo is stored as a JSON document in orders.delivery_info.
type DeliveryInfo struct {
	Recipient string `json:"recipient"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
}

// Complete reports whether every field is filled in.
func (d DeliveryInfo) Complete() bool {
	return strings.TrimSpace(d.Recipient) != "" &&
		strings.TrimSpace(d.Address) != "" &&
		strings.TrimSpace(d.Phone) != ""
}

func (d DeliveryInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *DeliveryInfo) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = DeliveryInfo{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("delivery_info: unsupported column type")
	}
}

// Order is the model for the 'orders' table. TotalPrice is frozen at creation.
type Order struct {
	ID           int64           `json:"id" db:"id"`
	UserID       int64           `json:"user_id" db:"user_id"`
	DeliveryInfo DeliveryInfo    `json:"delivery_info" db:"delivery_info"`
	TotalPrice   decimal.Decimal `json:"total_price" db:"total_price"`
	Status       OrderStatus     `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// OrderLine is the model for the 'order_details' table.
// Price is the cart line's price when the order was placed.
type OrderLine struct {
	OrderID  int64           `json:"order_id" db:"order_id"`
	BookID   int64           `json:"book_id" db:"book_id"`
	Quantity int             `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// Subtotal is quantity x price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderSummary is one row of GET /orders.
type OrderSummary struct {
	OrderID    int64           `json:"order_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OrderDetail is the header plus every line of one order.
type OrderDetail struct {
	ID           int64             `json:"order_id"`
	UserID       int64             `json:"user_id"`
	DeliveryInfo DeliveryInfo      `json:"delivery_info"`
	TotalPrice   decimal.Decimal   `json:"total_price"`
	Status       OrderStatus       `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	Books        []OrderDetailLine `json:"books"`
}

type OrderDetailLine struct {
	BookID   int64           `json:"book_id"`
	Title    string          `json:"title"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderStats is the admin dashboard summary.
type OrderStats struct {
	TotalOrders    int64                 `json:"total_orders"`
	OrdersByStatus map[OrderStatus]int64 `json:"orders_by_status"`
	// Revenue counts orders that were paid and not cancelled.
	Revenue decimal.Decimal `json:"revenue"`
}

// Earning reports whether orders in this status count towards revenue.
func (s OrderStatus) Earning() bool {
	switch s {
	case OrderStatusPaid, OrderStatusPreparingShipment, OrderStatusShipping, OrderStatusDelivered:
		return true
	}
	return false
}
