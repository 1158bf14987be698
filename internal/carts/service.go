// Package carts manages the per-user shopping cart. Every write is scoped to
// the owner so a user can never touch another user's lines.
package carts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

// Cart is the GET /carts response.
type Cart struct {
	Items      []models.CartLine `json:"items"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	TotalItems int               `json:"total_items"`
}

type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// AddItem puts quantity copies of a book into the cart. Adding a book that is
// already there increases its quantity.
func (s *Service) AddItem(ctx context.Context, userID, bookID int64, quantity int) error {
	if quantity < 1 {
		return apperr.BadRequest("quantity must be at least 1")
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM books WHERE id = ? AND deleted_at IS NULL", bookID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("book not found")
	}
	if err != nil {
		return apperr.Internalf(err, "check book %d", bookID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, book_id, quantity)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		userID, bookID, quantity)
	if err != nil {
		return apperr.Internalf(err, "upsert cart line")
	}
	return nil
}

// List returns the user's cart lines for books that are still on sale, at
// their current price.
func (s *Service) List(ctx context.Context, userID int64) (*Cart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.book_id, b.title, b.price, c.quantity
		FROM carts c
		JOIN books b ON c.book_id = b.id
		WHERE c.user_id = ? AND b.deleted_at IS NULL
		ORDER BY c.id`, userID)
	if err != nil {
		return nil, apperr.Internalf(err, "list cart of user %d", userID)
	}
	defer rows.Close()

	cart := &Cart{Items: []models.CartLine{}, Subtotal: decimal.Zero}
	for rows.Next() {
		l := models.CartLine{UserID: userID}
		if err := rows.Scan(&l.ID, &l.BookID, &l.Title, &l.Price, &l.Quantity); err != nil {
			return nil, apperr.Internalf(err, "scan cart line")
		}
		cart.Items = append(cart.Items, l)
		cart.Subtotal = cart.Subtotal.Add(l.Subtotal())
		cart.TotalItems += l.Quantity
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate cart lines")
	}
	return cart, nil
}

// UpdateQuantity sets the quantity of one of the user's lines.
func (s *Service) UpdateQuantity(ctx context.Context, userID, cartItemID int64, quantity int) error {
	if quantity < 1 {
		return apperr.BadRequest("quantity must be at least 1")
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE carts SET quantity = ? WHERE id = ? AND user_id = ?",
		quantity, cartItemID, userID)
	if err != nil {
		return apperr.Internalf(err, "update cart line %d", cartItemID)
	}
	return requireAffected(res)
}

// Remove deletes one of the user's lines.
func (s *Service) Remove(ctx context.Context, userID, cartItemID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE id = ? AND user_id = ?", cartItemID, userID)
	if err != nil {
		return apperr.Internalf(err, "delete cart line %d", cartItemID)
	}
	return requireAffected(res)
}

// requireAffected maps "no row matched" to NotFound. database.OpenDB enables
// clientFoundRows, so an UPDATE to the current quantity still counts as a match.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internalf(err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound("cart item not found")
	}
	return nil
}
