// Package orders turns selected cart lines into orders and serves order reads.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

// PlaceOrderInput is a checkout request from an authenticated user.
type PlaceOrderInput struct {
	UserID      int64
	CartItemIDs []int64
	Delivery    DeliveryRequest
}

// Requester is the authenticated caller of an order read.
type Requester struct {
	ID   int64
	Role string
}

func (r Requester) IsAdmin() bool { return r.Role == models.RoleAdmin }

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// PlaceOrder consumes the selected cart lines into a new pending_payment order
// and returns its id. Reading the lines, inserting the header and lines, and
// deleting the consumed cart rows happen in one transaction; on any failure
// nothing is written.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (int64, error) {
	// 1. --- Validate input before touching the store ---
	ids := DedupeIDs(in.CartItemIDs)
	if len(ids) == 0 {
		return 0, apperr.BadRequest("cart_item_ids must not be empty")
	}
	if err := in.Delivery.Validate(); err != nil {
		return 0, err
	}

	// The transaction runs to commit or rollback even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	var orderID int64
	err := database.WithTx(ctx, s.db, txOptions, func(tx *sql.Tx) error {
		// 2. --- Lock and validate the cart lines ---
		lines, err := FetchOrderableLines(ctx, tx, in.UserID, ids)
		if err != nil {
			return err
		}

		// 3. --- Resolve delivery info and assemble ---
		delivery, err := ResolveDelivery(ctx, tx, in.UserID, in.Delivery)
		if err != nil {
			return err
		}
		order, orderLines := Assemble(in.UserID, delivery, lines)

		// 4. --- Insert header ---
		orderID, err = insertOrder(ctx, tx, order)
		if err != nil {
			return err
		}

		// 5. --- Insert lines ---
		if err := insertOrderLines(ctx, tx, orderID, orderLines); err != nil {
			return err
		}

		// 6. --- Clear consumed cart lines ---
		return deleteCartLines(ctx, tx, in.UserID, ids)
	})
	if err != nil {
		return 0, err
	}

	slog.Info("order placed", "order_id", orderID, "user_id", in.UserID, "lines", len(ids))
	return orderID, nil
}

func insertOrder(ctx context.Context, tx Querier, o models.Order) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO orders (user_id, delivery_info, total_price, status) VALUES (?, ?, ?, ?)",
		o.UserID, o.DeliveryInfo, o.TotalPrice, o.Status,
	)
	if err != nil {
		return 0, apperr.Internalf(err, "insert order header")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Internalf(err, "order id")
	}
	return id, nil
}

func insertOrderLines(ctx context.Context, tx Querier, orderID int64, lines []models.OrderLine) error {
	values := make([]string, 0, len(lines))
	args := make([]any, 0, len(lines)*4)
	for _, l := range lines {
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, orderID, l.BookID, l.Quantity, l.Price)
	}
	query := "INSERT INTO order_details (order_id, book_id, quantity, price) VALUES " + strings.Join(values, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internalf(err, "insert lines of order %d", orderID)
	}
	return nil
}

// deleteCartLines re-asserts ownership at delete time. Anything but an exact
// match means another checkout got there first.
func deleteCartLines(ctx context.Context, tx Querier, ownerID int64, ids []int64) error {
	placeholders, idArgs := database.InClause(ids)
	query := fmt.Sprintf("DELETE FROM carts WHERE user_id = ? AND id IN (%s)", placeholders)

	res, err := tx.ExecContext(ctx, query, append([]any{ownerID}, idArgs...)...)
	if err != nil {
		return apperr.Internalf(err, "delete consumed cart lines")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internalf(err, "rows affected")
	}
	if n != int64(len(ids)) {
		return apperr.NotFound(msgLinesUnavailable)
	}
	return nil
}

// ListOrders returns the owner's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, ownerID int64) ([]models.OrderSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, total_price, status, created_at FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		ownerID,
	)
	if err != nil {
		return nil, apperr.Internalf(err, "list orders of user %d", ownerID)
	}
	defer rows.Close()

	out := []models.OrderSummary{}
	for rows.Next() {
		var o models.OrderSummary
		if err := rows.Scan(&o.OrderID, &o.TotalPrice, &o.Status, &o.CreatedAt); err != nil {
			return nil, apperr.Internalf(err, "scan order summary")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate orders")
	}
	return out, nil
}

// GetOrderDetail reads the header and every line in one query. Only the owner
// or an admin may see it.
func (s *Service) GetOrderDetail(ctx context.Context, orderID int64, who Requester) (*models.OrderDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.delivery_info, o.total_price, o.status, o.created_at,
		       od.book_id, b.title, od.quantity, od.price
		FROM orders o
		JOIN order_details od ON od.order_id = o.id
		JOIN books b ON b.id = od.book_id
		WHERE o.id = ?
		ORDER BY od.id`, orderID)
	if err != nil {
		return nil, apperr.Internalf(err, "select order %d", orderID)
	}
	defer rows.Close()

	var detail *models.OrderDetail
	for rows.Next() {
		var (
			hdr  models.OrderDetail
			line models.OrderDetailLine
		)
		if err := rows.Scan(
			&hdr.ID, &hdr.UserID, &hdr.DeliveryInfo, &hdr.TotalPrice, &hdr.Status, &hdr.CreatedAt,
			&line.BookID, &line.Title, &line.Quantity, &line.Price,
		); err != nil {
			return nil, apperr.Internalf(err, "scan order %d", orderID)
		}
		if detail == nil {
			detail = &hdr
		}
		detail.Books = append(detail.Books, line)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate order %d", orderID)
	}

	if detail == nil {
		return nil, apperr.NotFound("order not found")
	}
	if detail.UserID != who.ID && !who.IsAdmin() {
		return nil, apperr.Forbidden("you do not have permission to view this order")
	}
	return detail, nil
}

// UpdateStatus moves an order along its lifecycle. Callers must be admins.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next models.OrderStatus) error {
	if !next.Valid() {
		return apperr.BadRequest(fmt.Sprintf("unknown order status %q", next))
	}

	err := database.WithTx(ctx, s.db, txOptions, func(tx *sql.Tx) error {
		var current models.OrderStatus
		err := tx.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = ? FOR UPDATE", orderID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return apperr.Internalf(err, "select status of order %d", orderID)
		}

		if !current.CanTransitionTo(next) {
			return apperr.Conflict(fmt.Sprintf("cannot change order status from %s to %s", current, next))
		}

		if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", next, orderID); err != nil {
			return apperr.Internalf(err, "update status of order %d", orderID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("order status changed", "order_id", orderID, "status", next)
	return nil
}

// CancelStalePending cancels unpaid orders created more than window ago and
// returns how many were cancelled.
func (s *Service) CancelStalePending(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := s.now().Add(-window)
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = ? WHERE status = ? AND created_at < ?",
		models.OrderStatusCancelled, models.OrderStatusPendingPayment, cutoff,
	)
	if err != nil {
		return 0, apperr.Internalf(err, "cancel stale pending orders")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Internalf(err, "rows affected")
	}
	return n, nil
}

// Stats summarizes every order for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (*models.OrderStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*), COALESCE(SUM(total_price), 0) FROM orders GROUP BY status")
	if err != nil {
		return nil, apperr.Internalf(err, "order stats")
	}
	defer rows.Close()

	stats := &models.OrderStats{OrdersByStatus: map[models.OrderStatus]int64{}}
	for rows.Next() {
		var (
			status models.OrderStatus
			count  int64
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, apperr.Internalf(err, "scan order stats")
		}
		stats.TotalOrders += count
		stats.OrdersByStatus[status] = count
		if status.Earning() {
			stats.Revenue = stats.Revenue.Add(sum)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate order stats")
	}
	return stats, nil
}
