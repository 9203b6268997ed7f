// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/mailauth/internal/models"
)

// CreateVerificationCode stores a new hashed verification code.
func (r *Repository) CreateVerificationCode(ctx context.Context, code *models.VerificationCode) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_codes (user_id, purpose, code_hash, new_email, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		code.UserID, code.Purpose, code.CodeHash, code.NewEmail, code.ExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	code.ID = id
	return nil
}

// GetVerificationCode retrieves a code by hash and purpose, consumed or not.
func (r *Repository) GetVerificationCode(ctx context.Context, codeHash string, purpose models.Purpose) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.db.GetContext(ctx, &code,
		`SELECT * FROM verification_codes WHERE code_hash = ? AND purpose = ?`,
		codeHash, purpose)
	if err != nil {
		return nil, wrapError(err)
	}
	return &code, nil
}

// MarkVerificationCodeConsumed stamps the code as redeemed. Returns
// ErrNotFound if the code was already consumed.
func (r *Repository) MarkVerificationCodeConsumed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND consumed_at IS NULL`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUserVerificationCodes deletes all codes of one purpose for a user.
// Issuing a fresh code goes through here first, so at most one active code
// per (user, purpose) exists.
func (r *Repository) DeleteUserVerificationCodes(ctx context.Context, userID int64, purpose models.Purpose) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE user_id = ? AND purpose = ?`,
		userID, purpose)
	return err
}

// DeleteExpiredVerificationCodes deletes codes whose validity window has passed.
func (r *Repository) DeleteExpiredVerificationCodes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at < ?`, time.Now().UTC())
	return err
}

// CountActiveVerificationCodes counts unconsumed, unexpired codes for a
// (user, purpose) pair.
func (r *Repository) CountActiveVerificationCodes(ctx context.Context, userID int64, purpose models.Purpose) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM verification_codes
		 WHERE user_id = ? AND purpose = ? AND consumed_at IS NULL AND expires_at > ?`,
		userID, purpose, time.Now().UTC())
	return count, err
}
