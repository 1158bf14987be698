// Package dbtest starts a throwaway MySQL for integration tests and seeds it.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/01moynul/bookmarket-golang/internal/database"
)

const image = "mysql:8.0.36"

// MigrationsPath is the absolute path of the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// StartMySQL runs a MySQL container, applies the migrations and returns a pool.
// The test is skipped under -short or when no container runtime is available.
func StartMySQL(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := mysql.Run(ctx, image,
		mysql.WithDatabase("bookmarket"),
		mysql.WithUsername("root"),
		mysql.WithPassword("secret"),
	)
	t.Cleanup(func() {
		if ctr == nil {
			return
		}
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(dsn, MigrationsPath()))

	db, err := database.OpenDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts a user with the given address (nil for none) and returns its id.
func CreateUser(t *testing.T, db *sql.DB, email string, address *string) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO users (email, password, name, address, phone_number) VALUES (?, 'x', ?, ?, '010-0000-0000')",
		email, email, address,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// CreateCategory inserts a category under parentID (nil for a root).
func CreateCategory(t *testing.T, db *sql.DB, name string, parentID *int64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO categories (name, slug, parent_id) VALUES (?, ?, ?)", name, name, parentID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// CreateBook inserts a book priced at price (a decimal string).
func CreateBook(t *testing.T, db *sql.DB, categoryID int64, title, price string) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO books (category_id, title, author, price, published_date) VALUES (?, ?, 'author', ?, CURDATE())",
		categoryID, title, price,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// AddCartLine inserts a cart line and returns its id.
func AddCartLine(t *testing.T, db *sql.DB, userID, bookID int64, quantity int) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO carts (user_id, book_id, quantity) VALUES (?, ?, ?)", userID, bookID, quantity)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// Count runs a COUNT(*) query.
func Count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func Ptr[T any](v T) *T { return &v }
