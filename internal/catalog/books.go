// Package catalog serves books and categories.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

const maxPageLimit = 100

type Service struct {
	db            *sql.DB
	defaultLimit  int
	newBooksLimit int
}

func New(db *sql.DB, defaultLimit, newBooksLimit int) *Service {
	return &Service{db: db, defaultLimit: defaultLimit, newBooksLimit: newBooksLimit}
}

// categorySubtree matches books in a category or any of its descendants.
const categorySubtree = ` AND b.category_id IN (
		WITH RECURSIVE category_tree AS (
			SELECT id FROM categories WHERE id = ?
			UNION ALL
			SELECT c.id FROM categories c JOIN category_tree ct ON c.parent_id = ct.id
		)
		SELECT id FROM category_tree
	)`

// where builds the shared WHERE clause of the listing and count queries.
func where(f models.BookFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" WHERE b.deleted_at IS NULL")

	if f.CategoryID != nil {
		sb.WriteString(categorySubtree)
		args = append(args, *f.CategoryID)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		sb.WriteString(" AND (b.title LIKE ? OR b.summary LIKE ? OR b.author LIKE ?)")
		term := "%" + kw + "%"
		args = append(args, term, term, term)
	}
	if f.NewOnly {
		sb.WriteString(" AND b.published_date BETWEEN DATE_SUB(NOW(), INTERVAL 1 MONTH) AND NOW()")
	}
	return sb.String(), args
}

func (s *Service) normalize(f models.BookFilter) models.BookFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = s.defaultLimit
		if f.NewOnly {
			f.Limit = s.newBooksLimit
		}
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

// SearchBooks lists books matching the filter, newest first, with the total
// number of matches.
func (s *Service) SearchBooks(ctx context.Context, f models.BookFilter) (*models.BookPage, error) {
	f = s.normalize(f)
	cond, args := where(f)

	order := " ORDER BY b.created_at DESC, b.id DESC"
	if f.NewOnly {
		order = " ORDER BY b.published_date DESC, b.id DESC"
	}
	query := `
		SELECT b.id, b.category_id, b.title, b.author, b.price, b.image_url, b.summary, b.published_date, b.rating,
		       (SELECT COUNT(*) FROM book_likes bl WHERE bl.book_id = b.id) AS likes
		FROM books b` + cond + order + " LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return nil, apperr.Internalf(err, "search books")
	}
	defer rows.Close()

	page := &models.BookPage{Books: []models.Book{}, Pagination: models.Pagination{CurrentPage: f.Page}}
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.ID, &b.CategoryID, &b.Title, &b.Author, &b.Price, &b.ImageURL,
			&b.Summary, &b.PublishedDate, &b.Rating, &b.Likes); err != nil {
			return nil, apperr.Internalf(err, "scan book")
		}
		page.Books = append(page.Books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate books")
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books b"+cond, args...).
		Scan(&page.Pagination.TotalCount); err != nil {
		return nil, apperr.Internalf(err, "count books")
	}
	return page, nil
}

// GetBook returns one book with its details. userID is 0 for anonymous callers,
// for whom IsLiked is always false.
func (s *Service) GetBook(ctx context.Context, bookID, userID int64) (*models.BookDetail, error) {
	var b models.BookDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.category_id, b.title, b.author, b.price, b.image_url, b.summary, b.published_date, b.rating,
		       (SELECT COUNT(*) FROM book_likes bl WHERE bl.book_id = b.id) AS likes,
		       c.name, bd.isbn, bd.description, bd.table_of_contents, bd.form,
		       EXISTS(SELECT 1 FROM book_likes bl WHERE bl.book_id = b.id AND bl.user_id = ?) AS is_liked
		FROM books b
		JOIN categories c ON b.category_id = c.id
		LEFT JOIN book_details bd ON b.id = bd.book_id
		WHERE b.id = ? AND b.deleted_at IS NULL`, userID, bookID,
	).Scan(&b.ID, &b.CategoryID, &b.Title, &b.Author, &b.Price, &b.ImageURL, &b.Summary, &b.PublishedDate,
		&b.Rating, &b.Likes, &b.CategoryName, &b.ISBN, &b.Description, &b.TableOfContents, &b.Form, &b.IsLiked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("book not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "select book %d", bookID)
	}
	return &b, nil
}

// ToggleLike likes the book for the user, or removes an existing like.
// It returns whether the book is liked afterwards.
func (s *Service) ToggleLike(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM books WHERE id = ? AND deleted_at IS NULL", bookID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("book not found")
	}
	if err != nil {
		return false, apperr.Internalf(err, "check book %d", bookID)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM book_likes WHERE user_id = ? AND book_id = ?", userID, bookID)
	if err != nil {
		return false, apperr.Internalf(err, "unlike book %d", bookID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, apperr.Internalf(err, "rows affected")
	} else if n > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO book_likes (user_id, book_id) VALUES (?, ?)", userID, bookID)
	if err != nil && !database.IsDuplicateKey(err) {
		return false, apperr.Internalf(err, "like book %d", bookID)
	}
	return true, nil
}
