// Package users handles accounts, sessions and roles.
package users

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/auth"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

const (
	msgEmailTaken         = "The provided email is already in use. Please use another email."
	msgInvalidCredentials = "The email or password you entered is incorrect. Please try again."
	msgInvalidRefresh     = "The provided refresh token is invalid or has expired."
)

// Actor is the authenticated caller.
type Actor struct {
	ID   int64
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

type RegisterInput struct {
	Email       string
	Password    string
	Name        string
	Address     *string
	PhoneNumber *string
}

// UpdateInput holds the profile fields to change; nil fields are left alone.
type UpdateInput struct {
	Name        *string
	Address     *string
	PhoneNumber *string
	Password    *string
}

// Session is the result of a login or a refresh.
type Session struct {
	User             *models.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Service struct {
	db     *sql.DB
	tokens *auth.TokenIssuer
	now    func() time.Time
}

func New(db *sql.DB, tokens *auth.TokenIssuer) *Service {
	return &Service{db: db, tokens: tokens, now: time.Now}
}

const userColumns = "id, email, password, name, address, phone_number, role, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Address, &u.PhoneNumber, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Register creates an account with the user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	var password models.Password
	if err := password.Set(in.Password); err != nil {
		return 0, apperr.Internalf(err, "hash password")
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, password, name, address, phone_number, role) VALUES (?, ?, ?, ?, ?, ?)",
		strings.ToLower(strings.TrimSpace(in.Email)), password.Hash, in.Name, in.Address, in.PhoneNumber, models.RoleUser)
	if database.IsDuplicateKey(err) {
		return 0, apperr.Conflict(msgEmailTaken)
	}
	if err != nil {
		return 0, apperr.Internalf(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Internalf(err, "user id")
	}
	return id, nil
}

// Login checks the credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? AND deleted_at IS NULL",
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "select user by email")
	}

	ok, err := (&models.Password{Hash: u.PasswordHash}).Matches(plaintext)
	if err != nil {
		return nil, apperr.Internalf(err, "compare password")
	}
	if !ok {
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	return s.openSession(ctx, s.db, u)
}

func (s *Service) openSession(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, u *models.User) (*Session, error) {
	access, err := s.tokens.GenerateAccessToken(u.ID, u.Role)
	if err != nil {
		return nil, apperr.Internalf(err, "sign access token")
	}
	refresh, expiresAt, err := s.tokens.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, apperr.Internalf(err, "sign refresh token")
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES (?, ?, ?)",
		u.ID, refresh, expiresAt); err != nil {
		return nil, apperr.Internalf(err, "store refresh token")
	}

	return &Session{User: u, AccessToken: access, RefreshToken: refresh, RefreshExpiresAt: expiresAt}, nil
}

// Refresh exchanges a refresh token for a new session. The presented token is
// consumed, so replaying it fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.BadRequest("A refresh token is required to access this resource.")
	}
	if _, err := s.tokens.ValidateRefreshToken(refreshToken); err != nil {
		return nil, apperr.Unauthorized(msgInvalidRefresh)
	}

	var session *Session
	err := database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		rt := models.RefreshToken{Token: refreshToken}
		err := tx.QueryRowContext(ctx,
			"SELECT user_id, expires_at FROM refresh_tokens WHERE token = ? FOR UPDATE", rt.Token,
		).Scan(&rt.UserID, &rt.ExpiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Unauthorized(msgInvalidRefresh)
		}
		if err != nil {
			return apperr.Internalf(err, "select refresh token")
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token = ?", rt.Token); err != nil {
			return apperr.Internalf(err, "consume refresh token")
		}
		if !rt.ExpiresAt.After(s.now()) {
			// Expired: keep the delete, reject below.
			return nil
		}

		u, err := scanUser(tx.QueryRowContext(ctx,
			"SELECT "+userColumns+" FROM users WHERE id = ? AND deleted_at IS NULL", rt.UserID))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Unauthorized(msgInvalidRefresh)
		}
		if err != nil {
			return apperr.Internalf(err, "select user %d", rt.UserID)
		}

		session, err = s.openSession(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	return session, nil
}

// Logout forgets a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token = ?", refreshToken); err != nil {
		return apperr.Internalf(err, "delete refresh token")
	}
	return nil
}

// Get returns a user's profile to the user or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*models.User, error) {
	if actor.ID != id && !actor.IsAdmin() {
		return nil, apperr.Forbidden("You do not have permission to perform this action.")
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? AND deleted_at IS NULL", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "select user %d", id)
	}
	return u, nil
}

// List returns every active user. Admin only; enforced by the router.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE deleted_at IS NULL ORDER BY id")
	if err != nil {
		return nil, apperr.Internalf(err, "list users")
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internalf(err, "scan user")
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate users")
	}
	return out, nil
}

// Update changes profile fields of the user, by the user or an admin.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, in UpdateInput) (*models.User, error) {
	if actor.ID != id && !actor.IsAdmin() {
		return nil, apperr.Forbidden("You do not have permission to perform this action.")
	}

	var (
		sets []string
		args []any
	)
	if in.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *in.Name)
	}
	if in.Address != nil {
		sets, args = append(sets, "address = ?"), append(args, *in.Address)
	}
	if in.PhoneNumber != nil {
		sets, args = append(sets, "phone_number = ?"), append(args, *in.PhoneNumber)
	}
	if in.Password != nil {
		var p models.Password
		if err := p.Set(*in.Password); err != nil {
			return nil, apperr.Internalf(err, "hash password")
		}
		sets, args = append(sets, "password = ?"), append(args, p.Hash)
	}
	if len(sets) == 0 {
		return nil, apperr.BadRequest("No information was provided to update the resource.")
	}

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ? AND deleted_at IS NULL"
	res, err := s.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return nil, apperr.Internalf(err, "update user %d", id)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, apperr.Internalf(err, "rows affected")
	} else if n == 0 {
		return nil, apperr.NotFound("user not found")
	}

	return s.Get(ctx, actor, id)
}

// Delete soft-deletes the caller's own account and ends all its sessions.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	if actor.ID != id {
		return apperr.Forbidden("You can only delete your own account.")
	}

	return database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL", id)
		if err != nil {
			return apperr.Internalf(err, "soft delete user %d", id)
		}
		if n, err := res.RowsAffected(); err != nil {
			return apperr.Internalf(err, "rows affected")
		} else if n == 0 {
			return apperr.NotFound("user not found")
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", id); err != nil {
			return apperr.Internalf(err, "delete sessions of user %d", id)
		}
		return nil
	})
}

// UpdateRole changes another user's role. Admins cannot change their own role.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, id int64, role string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return apperr.BadRequest("role must be 'user' or 'admin'")
	}
	if actor.ID == id {
		return apperr.Forbidden("You cannot change your own role.")
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL", role, id)
	if err != nil {
		return apperr.Internalf(err, "update role of user %d", id)
	}
	if n, err := res.RowsAffected(); err != nil {
		return apperr.Internalf(err, "rows affected")
	} else if n == 0 {
		return apperr.NotFound("user not found")
	}

	slog.Info("user role changed", "user_id", id, "role", role, "by", actor.ID)
	return nil
}

// CleanupExpiredTokens deletes refresh tokens past their expiry.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", s.now())
	if err != nil {
		return 0, apperr.Internalf(err, "cleanup refresh tokens")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Internalf(err, "rows affected")
	}
	return n, nil
}
