// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and authenticates opaque bearer tokens.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"codeberg.org/oliverandrich/mailauth/internal/repository"
)

// TokenLength is the number of random bytes per token.
const TokenLength = 32

// ErrInvalidToken is returned when a presented token does not resolve to an
// active user.
var ErrInvalidToken = errors.New("invalid or revoked token")

// Service manages opaque auth tokens. The plaintext is handed out once at
// login; only the SHA-256 hash is stored.
type Service struct {
	repo *repository.Repository
}

// NewService creates a token service.
func NewService(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// Issue creates a new token for the user and returns its plaintext.
func (s *Service) Issue(ctx context.Context, userID int64) (string, error) {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(buf)

	record := &models.AuthToken{
		UserID:    userID,
		TokenHash: HashToken(plaintext),
	}
	if err := s.repo.CreateAuthToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return plaintext, nil
}

// Authenticate resolves a plaintext token to its active user and stamps the
// token's last use. Inactive users are rejected with ErrInvalidToken.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (*models.User, error) {
	if plaintext == "" {
		return nil, ErrInvalidToken
	}

	record, err := s.repo.GetAuthToken(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load token user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}

	if err := s.repo.TouchAuthToken(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("failed to touch token: %w", err)
	}

	return user, nil
}

// RevokeAll deletes every token the user holds.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	return s.repo.DeleteUserAuthTokens(ctx, userID)
}

// HashToken computes the SHA-256 hash of a token for storage and lookup.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
