// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// User is an account identified by a unique email address. Accounts start
// unverified and become verified once the signup code is redeemed.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	PendingEmail string     `db:"pending_email" json:"pending_email,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}
