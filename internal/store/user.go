package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/streamhub/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByHandle looks a user up by username or email, case-insensitively
// and exact-match. The handle doubles for both fields at login.
func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(username) = lower($1) OR lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, handle))
}

// Create persists a new user. Username and email are folded to
// lowercase before storage; a duplicate of either yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, full_name, avatar_url, cover_image_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FullName,
		user.AvatarURL,
		user.CoverImageURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile updates the mutable identity fields and nothing else.
// Password and token columns are out of reach of this statement.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int, fullName, email string) (types.User, error) {
	const query = `
		UPDATE users
		SET full_name = $1,
			email = $2,
			updated_at = $3
		WHERE id = $4
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, query, fullName, strings.ToLower(email), time.Now(), id)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdatePassword replaces the stored digest. The caller hashes; this
// statement never touches any other column.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return r.execExpectingRow(ctx, query, passwordHash, time.Now(), id)
}

// SetRefreshToken stores the refresh token issued at login,
// unconditionally replacing whatever was there.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id int, token string) error {
	const query = `
		UPDATE users
		SET refresh_token = $1,
			updated_at = $2
		WHERE id = $3`
	return r.execExpectingRow(ctx, query, token, time.Now(), id)
}

// RotateRefreshToken swaps current for next in a single conditional
// update. If the stored token no longer equals current (a concurrent
// refresh already rotated it, or logout cleared it), no row matches and
// ErrNotFound is returned. This is the reuse-detection gate, done at
// the storage layer so it holds across service instances.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id int, current, next string) error {
	const query = `
		UPDATE users
		SET refresh_token = $1,
			updated_at = $2
		WHERE id = $3 AND refresh_token = $4`
	return r.execExpectingRow(ctx, query, next, time.Now(), id, current)
}

// ClearRefreshToken unsets the stored refresh token, ending the session
// server-side. Subsequent rotations for this user fail until a new login.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id int) error {
	const query = `
		UPDATE users
		SET refresh_token = '',
			updated_at = $1
		WHERE id = $2`
	return r.execExpectingRow(ctx, query, time.Now(), id)
}

// UpdateAvatar replaces the avatar reference.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id int, avatarURL string) (types.User, error) {
	const query = `
		UPDATE users
		SET avatar_url = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, avatarURL, time.Now(), id))
}

// UpdateCoverImage replaces the cover image reference.
func (r *UserRepository) UpdateCoverImage(ctx context.Context, id int, coverImageURL string) (types.User, error) {
	const query = `
		UPDATE users
		SET cover_image_url = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, coverImageURL, time.Now(), id))
}

func (r *UserRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
