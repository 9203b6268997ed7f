// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/mailauth/internal/models"
)

// CreateUser inserts a new user and fills in the generated ID and timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, is_verified, is_active, pending_email)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.IsVerified, user.IsActive, user.PendingEmail)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	*user = *created
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address. The email column is
// case-insensitive.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UpdateUserPassword updates a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id)
	return err
}

// MarkUserVerified flips the verified flag for a user.
func (r *Repository) MarkUserVerified(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id)
	return err
}

// SetPendingEmail stages a new email address awaiting confirmation.
func (r *Repository) SetPendingEmail(ctx context.Context, id int64, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET pending_email = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, id)
	return err
}

// PromotePendingEmail replaces the user's email with the given address and
// clears the pending email in a single statement.
func (r *Repository) PromotePendingEmail(ctx context.Context, id int64, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, pending_email = '', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, id)
	return err
}

// TouchLastLogin stamps the user's last login time.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// DeleteUser deletes a user by ID. Verification codes and auth tokens are
// removed by the foreign key cascade.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}
