package models

import "github.com/shopspring/decimal"

// CartLine is one row of the 'carts' table joined with the book's current price.
// A user holds at most one line per book; adding the same book again adds to Quantity.
type CartLine struct {
	ID       int64           `json:"cart_id" db:"id"`
	UserID   int64           `json:"-" db:"user_id"`
	BookID   int64           `json:"book_id" db:"book_id"`
	Title    string          `json:"title,omitempty" db:"title"`
	Quantity int             `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// Subtotal is quantity x price.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
