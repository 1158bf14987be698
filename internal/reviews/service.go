// Package reviews handles book reviews and review likes. Every write that
// changes ratings recomputes the book's average in the same transaction.
package reviews

import (
	"context"
	"database/sql"
	"errors"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

type Input struct {
	Content string
	Rating  int
}

func (in Input) validate() error {
	if in.Content == "" {
		return apperr.BadRequest("content is required")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return apperr.BadRequest("rating must be between 1 and 5")
	}
	return nil
}

type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// ListByBook returns a book's reviews, newest first.
func (s *Service) ListByBook(ctx context.Context, bookID int64) ([]models.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.book_id, r.content, r.rating, r.created_at, r.updated_at, u.name,
		       (SELECT COUNT(*) FROM review_likes rl WHERE rl.review_id = r.id) AS likes
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.book_id = ?
		ORDER BY r.created_at DESC, r.id DESC`, bookID)
	if err != nil {
		return nil, apperr.Internalf(err, "list reviews of book %d", bookID)
	}
	defer rows.Close()

	out := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.BookID, &r.Content, &r.Rating,
			&r.CreatedAt, &r.UpdatedAt, &r.UserName, &r.Likes); err != nil {
			return nil, apperr.Internalf(err, "scan review")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate reviews")
	}
	return out, nil
}

// Create adds a review. Only users with a non-cancelled order containing the
// book may review it.
func (s *Service) Create(ctx context.Context, userID, bookID int64, in Input) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}

	var purchased int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM orders o
		JOIN order_details od ON o.id = od.order_id
		WHERE o.user_id = ? AND od.book_id = ? AND o.status <> ?
		LIMIT 1`, userID, bookID, models.OrderStatusCancelled).Scan(&purchased)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.Forbidden("only customers who purchased this book can review it")
	}
	if err != nil {
		return 0, apperr.Internalf(err, "check purchase history")
	}

	var reviewID int64
	err = database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO reviews (user_id, book_id, content, rating) VALUES (?, ?, ?, ?)",
			userID, bookID, in.Content, in.Rating)
		if err != nil {
			return apperr.Internalf(err, "insert review")
		}
		if reviewID, err = res.LastInsertId(); err != nil {
			return apperr.Internalf(err, "review id")
		}
		return updateBookRating(ctx, tx, bookID)
	})
	return reviewID, err
}

// Update edits the author's own review.
func (s *Service) Update(ctx context.Context, reviewID, userID int64, in Input) error {
	if err := in.validate(); err != nil {
		return err
	}

	return database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		r, err := findForUpdate(ctx, tx, reviewID)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.NotFound("review not found")
		}
		if r.UserID != userID {
			return apperr.Forbidden("you can only edit your own reviews")
		}

		if _, err := tx.ExecContext(ctx, "UPDATE reviews SET content = ?, rating = ? WHERE id = ?",
			in.Content, in.Rating, reviewID); err != nil {
			return apperr.Internalf(err, "update review %d", reviewID)
		}
		return updateBookRating(ctx, tx, r.BookID)
	})
}

// Delete removes a review as its author or an admin. Deleting a review that
// does not exist succeeds.
func (s *Service) Delete(ctx context.Context, reviewID, userID int64, role string) error {
	return database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		r, err := findForUpdate(ctx, tx, reviewID)
		if err != nil || r == nil {
			return err
		}
		if r.UserID != userID && role != models.RoleAdmin {
			return apperr.Forbidden("you do not have permission to delete this review")
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", reviewID); err != nil {
			return apperr.Internalf(err, "delete review %d", reviewID)
		}
		return updateBookRating(ctx, tx, r.BookID)
	})
}

// ToggleLike likes a review, or removes the like. It returns whether the
// review is liked afterwards.
func (s *Service) ToggleLike(ctx context.Context, reviewID, userID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM reviews WHERE id = ?", reviewID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("review not found")
	}
	if err != nil {
		return false, apperr.Internalf(err, "check review %d", reviewID)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM review_likes WHERE user_id = ? AND review_id = ?", userID, reviewID)
	if err != nil {
		return false, apperr.Internalf(err, "unlike review %d", reviewID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, apperr.Internalf(err, "rows affected")
	} else if n > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO review_likes (user_id, review_id) VALUES (?, ?)", userID, reviewID)
	if err != nil && !database.IsDuplicateKey(err) {
		return false, apperr.Internalf(err, "like review %d", reviewID)
	}
	return true, nil
}

// findForUpdate returns nil, nil when the review does not exist.
func findForUpdate(ctx context.Context, tx *sql.Tx, reviewID int64) (*models.Review, error) {
	var r models.Review
	err := tx.QueryRowContext(ctx, "SELECT id, user_id, book_id FROM reviews WHERE id = ? FOR UPDATE", reviewID).
		Scan(&r.ID, &r.UserID, &r.BookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf(err, "select review %d", reviewID)
	}
	return &r, nil
}

func updateBookRating(ctx context.Context, tx *sql.Tx, bookID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE books
		SET rating = COALESCE((SELECT ROUND(AVG(r.rating), 2) FROM reviews r WHERE r.book_id = ?), 0)
		WHERE id = ?`, bookID, bookID)
	if err != nil {
		return apperr.Internalf(err, "update rating of book %d", bookID)
	}
	return nil
}
