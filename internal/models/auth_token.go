// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AuthToken stores a hashed opaque bearer token issued at login.
type AuthToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	TokenHash  string     `db:"token_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}
