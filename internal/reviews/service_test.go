package reviews_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/models"
	"github.com/01moynul/bookmarket-golang/internal/reviews"
)

var (
	purchaseSQL  = regexp.QuoteMeta("JOIN order_details od ON o.id = od.order_id")
	insertSQL    = regexp.QuoteMeta("INSERT INTO reviews (user_id, book_id, content, rating) VALUES (?, ?, ?, ?)")
	ratingSQL    = regexp.QuoteMeta("UPDATE books")
	findSQL      = regexp.QuoteMeta("SELECT id, user_id, book_id FROM reviews WHERE id = ? FOR UPDATE")
	deleteSQL    = regexp.QuoteMeta("DELETE FROM reviews WHERE id = ?")
	updateSQL    = regexp.QuoteMeta("UPDATE reviews SET content = ?, rating = ? WHERE id = ?")
	reviewRowCol = []string{"id", "user_id", "book_id"}
)

func newService(t *testing.T) (*reviews.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return reviews.New(db), mock
}

func TestCreate(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(purchaseSQL).WithArgs(int64(42), int64(3), "cancelled").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(insertSQL).WithArgs(int64(42), int64(3), "great", 5).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(ratingSQL).WithArgs(int64(3), int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := svc.Create(context.Background(), 42, 3, reviews.Input{Content: "great", Rating: 5})

	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_NotPurchased(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(purchaseSQL).WillReturnError(sql.ErrNoRows)

	_, err := svc.Create(context.Background(), 42, 3, reviews.Input{Content: "great", Rating: 5})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCreate_InvalidRating(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), 42, 3, reviews.Input{Content: "meh", Rating: 6})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestUpdate(t *testing.T) {
	t.Run("author", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(findSQL).WithArgs(int64(11)).WillReturnRows(sqlmock.NewRows(reviewRowCol).AddRow(11, 42, 3))
		mock.ExpectExec(updateSQL).WithArgs("better", 4, int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(ratingSQL).WithArgs(int64(3), int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.Update(context.Background(), 11, 42, reviews.Input{Content: "better", Rating: 4}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not author", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(findSQL).WillReturnRows(sqlmock.NewRows(reviewRowCol).AddRow(11, 42, 3))
		mock.ExpectRollback()

		err := svc.Update(context.Background(), 11, 43, reviews.Input{Content: "x", Rating: 1})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(findSQL).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := svc.Update(context.Background(), 11, 42, reviews.Input{Content: "x", Rating: 1})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestDelete(t *testing.T) {
	t.Run("admin deletes someone else's review", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(findSQL).WillReturnRows(sqlmock.NewRows(reviewRowCol).AddRow(11, 42, 3))
		mock.ExpectExec(deleteSQL).WithArgs(int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(ratingSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.Delete(context.Background(), 11, 1, models.RoleAdmin))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stranger", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(findSQL).WillReturnRows(sqlmock.NewRows(reviewRowCol).AddRow(11, 42, 3))
		mock.ExpectRollback()

		err := svc.Delete(context.Background(), 11, 43, models.RoleUser)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("already gone", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(findSQL).WillReturnError(sql.ErrNoRows)
		mock.ExpectCommit()

		require.NoError(t, svc.Delete(context.Background(), 11, 42, models.RoleUser))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListByBook(t *testing.T) {
	svc, mock := newService(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM reviews r")).WithArgs(int64(3)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "book_id", "content", "rating", "created_at", "updated_at", "name", "likes"}).
			AddRow(int64(11), int64(42), int64(3), "great", 5, now, now, "Kim", int64(2)))

	got, err := svc.ListByBook(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Kim", got[0].UserName)
	assert.Equal(t, int64(2), got[0].Likes)
}

func TestToggleLike(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM reviews WHERE id = ?")).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_likes")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_likes")).WillReturnResult(sqlmock.NewResult(0, 1))

	liked, err := svc.ToggleLike(context.Background(), 11, 42)

	require.NoError(t, err)
	assert.True(t, liked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
