package users

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/auth"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

var userCols = []string{"id", "email", "password", "name", "address", "phone_number", "role", "created_at"}

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tokens := auth.NewTokenIssuer("access", "refresh", time.Hour, 24*time.Hour)
	return New(db, tokens), mock
}

func hash(t *testing.T, plaintext string) string {
	t.Helper()
	var p models.Password
	require.NoError(t, p.Set(plaintext))
	return p.Hash
}

func TestRegister(t *testing.T) {
	insert := regexp.QuoteMeta("INSERT INTO users (email, password, name, address, phone_number, role)")

	t.Run("ok", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectExec(insert).
			WithArgs("kim@example.com", sqlmock.AnyArg(), "Kim", "Seoul", nil, "user").
			WillReturnResult(sqlmock.NewResult(42, 1))

		addr := "Seoul"
		id, err := svc.Register(context.Background(), RegisterInput{
			Email: " Kim@Example.com", Password: "password1", Name: "Kim", Address: &addr,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectExec(insert).WillReturnError(&mysql.MySQLError{Number: 1062})

		_, err := svc.Register(context.Background(), RegisterInput{Email: "kim@example.com", Password: "password1", Name: "Kim"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})
}

func TestLogin(t *testing.T) {
	selectUser := regexp.QuoteMeta("FROM users WHERE email = ? AND deleted_at IS NULL")

	t.Run("ok", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectQuery(selectUser).WithArgs("kim@example.com").WillReturnRows(
			sqlmock.NewRows(userCols).AddRow(int64(42), "kim@example.com", hash(t, "password1"), "Kim", "Seoul", nil, "user", time.Now()))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
			WithArgs(int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		s, err := svc.Login(context.Background(), "kim@example.com", "password1")

		require.NoError(t, err)
		assert.NotEmpty(t, s.AccessToken)
		assert.NotEmpty(t, s.RefreshToken)
		claims, err := svc.tokens.ValidateAccessToken(s.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user", claims.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectQuery(selectUser).WillReturnRows(
			sqlmock.NewRows(userCols).AddRow(int64(42), "kim@example.com", hash(t, "password1"), "Kim", nil, nil, "user", time.Now()))

		_, err := svc.Login(context.Background(), "kim@example.com", "nope")
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})

	t.Run("unknown email", func(t *testing.T) {
		svc, mock := newService(t)
		mock.ExpectQuery(selectUser).WillReturnError(sql.ErrNoRows)

		_, err := svc.Login(context.Background(), "ghost@example.com", "password1")
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})
}

func TestRefresh_Rotates(t *testing.T) {
	svc, mock := newService(t)
	old, _, err := svc.tokens.GenerateRefreshToken(42)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, expires_at FROM refresh_tokens WHERE token = ? FOR UPDATE")).
		WithArgs(old).WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow(int64(42), time.Now().Add(time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE token = ?")).WithArgs(old).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ? AND deleted_at IS NULL")).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(42), "kim@example.com", "x", "Kim", nil, nil, "admin", time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	s, err := svc.Refresh(context.Background(), old)

	require.NoError(t, err)
	assert.NotEqual(t, old, s.RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefresh_ReplayedOrExpired(t *testing.T) {
	selectToken := regexp.QuoteMeta("SELECT user_id, expires_at FROM refresh_tokens")

	t.Run("replayed", func(t *testing.T) {
		svc, mock := newService(t)
		tok, _, _ := svc.tokens.GenerateRefreshToken(42)
		mock.ExpectBegin()
		mock.ExpectQuery(selectToken).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := svc.Refresh(context.Background(), tok)
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})

	t.Run("expired row", func(t *testing.T) {
		svc, mock := newService(t)
		tok, _, _ := svc.tokens.GenerateRefreshToken(42)
		mock.ExpectBegin()
		mock.ExpectQuery(selectToken).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow(int64(42), time.Now().Add(-time.Minute)))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := svc.Refresh(context.Background(), tok)
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("forged", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Refresh(context.Background(), "forged")
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})

	t.Run("missing", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Refresh(context.Background(), "")
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})
}

func TestGet_Permissions(t *testing.T) {
	svc, mock := newService(t)

	_, err := svc.Get(context.Background(), Actor{ID: 1, Role: models.RoleUser}, 2)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(2), "b@example.com", "x", "B", nil, nil, "user", time.Now()))
	u, err := svc.Get(context.Background(), Actor{ID: 1, Role: models.RoleAdmin}, 2)
	require.NoError(t, err)
	assert.Equal(t, "B", u.Name)
}

func TestUpdate(t *testing.T) {
	t.Run("nothing to update", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Update(context.Background(), Actor{ID: 1}, 1, UpdateInput{})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("address", func(t *testing.T) {
		svc, mock := newService(t)
		addr := "Busan"
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET address = ? WHERE id = ? AND deleted_at IS NULL")).
			WithArgs("Busan", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(1), "a@example.com", "x", "A", "Busan", nil, "user", time.Now()))

		u, err := svc.Update(context.Background(), Actor{ID: 1}, 1, UpdateInput{Address: &addr})
		require.NoError(t, err)
		require.NotNil(t, u.Address)
		assert.Equal(t, "Busan", *u.Address)
	})
}

func TestDelete(t *testing.T) {
	svc, mock := newService(t)

	assert.True(t, apperr.Is(svc.Delete(context.Background(), Actor{ID: 1, Role: models.RoleAdmin}, 2), apperr.KindForbidden))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET deleted_at = CURRENT_TIMESTAMP")).WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE user_id = ?")).WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), Actor{ID: 1}, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRole(t *testing.T) {
	svc, mock := newService(t)
	admin := Actor{ID: 1, Role: models.RoleAdmin}

	assert.True(t, apperr.Is(svc.UpdateRole(context.Background(), admin, 2, "root"), apperr.KindBadRequest))
	assert.True(t, apperr.Is(svc.UpdateRole(context.Background(), admin, 1, "user"), apperr.KindForbidden))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = ? WHERE id = ?")).WithArgs("admin", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, apperr.Is(svc.UpdateRole(context.Background(), admin, 2, "admin"), apperr.KindNotFound))
}

func TestCleanupExpiredTokens(t *testing.T) {
	svc, mock := newService(t)
	now := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at <= ?")).WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := svc.CleanupExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
