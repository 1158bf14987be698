package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

const msgLinesUnavailable = "one or more selected items are no longer available or do not belong to you"

// Querier is the subset of *sql.Tx (and *sql.DB) the order steps need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DedupeIDs drops repeated ids, keeping first-seen order.
func DedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FetchOrderableLines locks and returns the owner's cart lines among ids whose
// book is not soft-deleted, priced at the book's current price. ids must
// already be distinct. Fewer rows than ids means at least one line is foreign,
// already consumed or points to a removed book, and the whole request fails.
func FetchOrderableLines(ctx context.Context, q Querier, ownerID int64, ids []int64) ([]models.CartLine, error) {
	if len(ids) == 0 {
		return nil, apperr.BadRequest("cart_item_ids must not be empty")
	}

	placeholders, idArgs := database.InClause(ids)
	query := fmt.Sprintf(`
		SELECT c.id, c.user_id, c.book_id, c.quantity, b.price
		FROM carts c
		JOIN books b ON b.id = c.book_id
		WHERE c.user_id = ? AND c.id IN (%s) AND b.deleted_at IS NULL
		ORDER BY c.id
		FOR UPDATE OF c`, placeholders)

	args := append([]any{ownerID}, idArgs...)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internalf(err, "select cart lines for user %d", ownerID)
	}
	defer rows.Close()

	lines := make([]models.CartLine, 0, len(ids))
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.BookID, &l.Quantity, &l.Price); err != nil {
			return nil, apperr.Internalf(err, "scan cart line")
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate cart lines")
	}

	if len(lines) != len(ids) {
		return nil, apperr.NotFound(msgLinesUnavailable)
	}
	return lines, nil
}
