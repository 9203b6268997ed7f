// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification implements the issuance and redemption of short-lived
// verification codes for account flows.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"codeberg.org/oliverandrich/mailauth/internal/repository"
)

// CodeLength is the number of random bytes per verification code.
const CodeLength = 32

// ErrInvalidCode is returned for every failing code check: unknown, wrong
// purpose, expired or already consumed. Callers must not be able to tell
// these apart, so the check never leaks whether an account exists.
var ErrInvalidCode = errors.New("invalid, expired or already used code")

// Service issues and redeems verification codes.
type Service struct {
	repo *repository.Repository
	ttl  time.Duration
}

// NewService creates a verification service whose codes expire after ttl.
func NewService(repo *repository.Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl}
}

// IssueOptions carries flow-specific payload stored with a code.
type IssueOptions struct {
	// NewEmail is the staged address for email-change codes.
	NewEmail string
}

// Issue generates a fresh code for (user, purpose), superseding any prior
// unconsumed code of the same purpose. The plaintext is returned exactly
// once; only its SHA-256 hash is stored.
func (s *Service) Issue(ctx context.Context, userID int64, purpose models.Purpose, opts IssueOptions) (string, *models.VerificationCode, error) {
	// Older codes for this pair stop validating the moment a new one exists.
	if err := s.repo.DeleteUserVerificationCodes(ctx, userID, purpose); err != nil {
		return "", nil, fmt.Errorf("failed to supersede codes: %w", err)
	}

	// Expired rows are dead weight, drop them while we are writing anyway.
	if err := s.repo.DeleteExpiredVerificationCodes(ctx); err != nil {
		return "", nil, fmt.Errorf("failed to prune expired codes: %w", err)
	}

	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	plaintext := hex.EncodeToString(buf)

	code := &models.VerificationCode{
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  HashCode(plaintext),
		NewEmail:  opts.NewEmail,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}
	if err := s.repo.CreateVerificationCode(ctx, code); err != nil {
		return "", nil, fmt.Errorf("failed to store code: %w", err)
	}

	return plaintext, code, nil
}

// Check validates a submitted code against the store without side effects.
// Returns the matching record on success and ErrInvalidCode otherwise.
func (s *Service) Check(ctx context.Context, purpose models.Purpose, plaintext string) (*models.VerificationCode, error) {
	if plaintext == "" {
		return nil, ErrInvalidCode
	}

	code, err := s.repo.GetVerificationCode(ctx, HashCode(plaintext), purpose)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}

	if code.Consumed() || code.Expired(time.Now().UTC()) {
		return nil, ErrInvalidCode
	}

	return code, nil
}

// Redeem validates a code and marks it consumed. All remaining codes of the
// same (user, purpose) pair are deleted, so resubmission always fails.
func (s *Service) Redeem(ctx context.Context, purpose models.Purpose, plaintext string) (*models.VerificationCode, error) {
	code, err := s.Check(ctx, purpose, plaintext)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkVerificationCodeConsumed(ctx, code.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race against a concurrent redemption.
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}

	if err := s.repo.DeleteUserVerificationCodes(ctx, code.UserID, purpose); err != nil {
		return nil, fmt.Errorf("failed to clear codes: %w", err)
	}

	return code, nil
}

// HashCode computes the SHA-256 hash of a code for storage and lookup.
func HashCode(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
