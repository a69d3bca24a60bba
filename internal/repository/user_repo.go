package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikhil/saasbase/internal/database"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
)

const userColumns = `u.id, u.email, u.name, u.image, u.email_verified, u.role, u.created_at, u.updated_at, u.deleted_at`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *usermodels.User) error {
	return row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &u.Role, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
}

func (r *UserRepository) Create(ctx context.Context, user usermodels.User) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO users (id, email, name, image, email_verified, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.Image, user.EmailVerified, user.Role, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", handleWriteError(err))
	}
	return nil
}

// GetActiveByID returns the user unless it is missing or soft deleted.
func (r *UserRepository) GetActiveByID(ctx context.Context, userID string) (*usermodels.User, error) {
	conn := r.db.Conn(ctx)

	var user usermodels.User
	row := conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ? AND u.deleted_at IS NULL LIMIT 1`, userID)
	if err := scanUser(row, &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", HandleNoRowsError(err))
	}
	return &user, nil
}

func (r *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*usermodels.User, error) {
	conn := r.db.Conn(ctx)

	var user usermodels.User
	row := conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = ? AND u.deleted_at IS NULL LIMIT 1`, strings.ToLower(email))
	if err := scanUser(row, &user); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", HandleNoRowsError(err))
	}
	return &user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID, name, email string, at time.Time) error {
	conn := r.db.Conn(ctx)

	res, err := conn.ExecContext(ctx, `UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		name, strings.ToLower(email), at, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", handleWriteError(err))
	}
	return expectAffected(res)
}

// SoftDelete stamps deleted_at and rewrites the email so the address can
// register again.
func (r *UserRepository) SoftDelete(ctx context.Context, userID string, at time.Time) error {
	conn := r.db.Conn(ctx)

	res, err := conn.ExecContext(ctx, `
		UPDATE users SET deleted_at = ?, updated_at = ?, email = CONCAT(email, '-', id, '-deleted')
		WHERE id = ? AND deleted_at IS NULL`, at, at, userID)
	if err != nil {
		return fmt.Errorf("failed to soft delete user: %w", err)
	}
	return expectAffected(res)
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash), updated_at = VALUES(updated_at)`,
		userID, hash, at)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (r *UserRepository) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	conn := r.db.Conn(ctx)

	var hash string
	err := conn.QueryRowContext(ctx, `SELECT password_hash FROM credentials WHERE user_id = ?`, userID).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to get credential: %w", HandleNoRowsError(err))
	}
	return hash, nil
}

type resultAffected interface {
	RowsAffected() (int64, error)
}

func expectAffected(res resultAffected) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
