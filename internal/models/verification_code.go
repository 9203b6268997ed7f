// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Purpose scopes a verification code to a single account flow. Codes issued
// for one flow are never accepted by another.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposePasswordReset Purpose = "password_reset"
	PurposeEmailChange   Purpose = "email_change"
)

// VerificationCode stores a hashed short-lived code for an account flow.
// Only the SHA-256 hash is persisted; the plaintext is sent by email once.
type VerificationCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	Purpose    Purpose    `db:"purpose" json:"purpose"`
	CodeHash   string     `db:"code_hash" json:"-"`
	NewEmail   string     `db:"new_email" json:"new_email,omitempty"` // email_change only
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}

// Consumed reports whether the code has already been redeemed.
func (v *VerificationCode) Consumed() bool {
	return v.ConsumedAt != nil
}

// Expired reports whether the code's validity window has passed.
func (v *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
