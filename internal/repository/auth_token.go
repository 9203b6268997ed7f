// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/mailauth/internal/models"
)

// CreateAuthToken stores a new hashed auth token.
func (r *Repository) CreateAuthToken(ctx context.Context, token *models.AuthToken) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (user_id, token_hash) VALUES (?, ?)`,
		token.UserID, token.TokenHash)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = id
	return nil
}

// GetAuthToken retrieves an auth token by hash.
func (r *Repository) GetAuthToken(ctx context.Context, tokenHash string) (*models.AuthToken, error) {
	var token models.AuthToken
	err := r.db.GetContext(ctx, &token,
		`SELECT * FROM auth_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// TouchAuthToken stamps the token's last use.
func (r *Repository) TouchAuthToken(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE auth_tokens SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// DeleteUserAuthTokens deletes all tokens for a user. Logout revokes every
// session the user holds.
func (r *Repository) DeleteUserAuthTokens(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = ?`, userID)
	return err
}
