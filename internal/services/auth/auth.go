// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account flows: signup, email verification,
// password reset, email change, password change and token login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"codeberg.org/oliverandrich/mailauth/internal/config"
	"codeberg.org/oliverandrich/mailauth/internal/models"
	"codeberg.org/oliverandrich/mailauth/internal/repository"
	"codeberg.org/oliverandrich/mailauth/internal/services/mailer"
	"codeberg.org/oliverandrich/mailauth/internal/services/token"
	"codeberg.org/oliverandrich/mailauth/internal/services/verification"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email address already taken")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotVerified    = errors.New("user account not verified")
	ErrUserNotActive      = errors.New("user account not active")
	ErrResetNotAllowed    = errors.New("password reset not allowed")
)

// ErrInvalidCode is re-exported so handlers depend on one package.
var ErrInvalidCode = verification.ErrInvalidCode

// dummyHash is used for constant-time login to prevent timing attacks.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Service orchestrates the account flows on top of the repository, the
// verification code store, the mailer and the token store.
type Service struct {
	repo              *repository.Repository
	codes             *verification.Service
	mail              *mailer.Mailer
	tokens            *token.Service
	cfg               *config.AuthConfig
	passwordValidator *PasswordValidator
}

// NewService creates the account flows service.
func NewService(repo *repository.Repository, codes *verification.Service, mail *mailer.Mailer, tokens *token.Service, cfg *config.AuthConfig) *Service {
	return &Service{
		repo:              repo,
		codes:             codes,
		mail:              mail,
		tokens:            tokens,
		cfg:               cfg,
		passwordValidator: DefaultPasswordValidator(),
	}
}

// ValidatePassword validates a password against the account policy.
func (s *Service) ValidatePassword(password string, userAttributes ...string) ValidationResult {
	return s.passwordValidator.Validate(password, userAttributes...)
}

// CheckCode validates a submitted code without redeeming it.
func (s *Service) CheckCode(ctx context.Context, purpose models.Purpose, code string) (*models.VerificationCode, error) {
	return s.codes.Check(ctx, purpose, code)
}

// Signup creates (or refreshes) an unverified account for the email address
// and sends the signup verification email. A verified account holding the
// address rejects the request with ErrEmailTaken.
func (s *Service) Signup(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	validation := s.passwordValidator.Validate(password, email)
	if !validation.Valid {
		return nil, &PasswordValidationError{Errors: validation.Errors}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.IsVerified {
			return nil, ErrEmailTaken
		}
		// An unverified account can be re-claimed with fresh credentials.
		if err := s.repo.UpdateUserPassword(ctx, user.ID, string(passwordHash)); err != nil {
			return nil, fmt.Errorf("failed to update password: %w", err)
		}
		user.PasswordHash = string(passwordHash)
	case errors.Is(err, repository.ErrNotFound):
		user = &models.User{
			Email:        email,
			PasswordHash: string(passwordHash),
			IsActive:     true,
		}
		if err := s.repo.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	code, _, err := s.codes.Issue(ctx, user.ID, models.PurposeSignup, verification.IssueOptions{})
	if err != nil {
		return nil, err
	}

	if err := s.mail.Send(ctx, mailer.TemplateSignup, user.Email, map[string]any{
		"Code":      code,
		"VerifyURL": s.verifyURL("/signup/verify", code),
	}); err != nil {
		return nil, fmt.Errorf("failed to send signup email: %w", err)
	}

	slog.Info("signup_requested", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// VerifySignup redeems a signup code and marks the account verified. The
// welcome email is sent afterwards when enabled.
func (s *Service) VerifySignup(ctx context.Context, code string) (*models.User, error) {
	record, err := s.codes.Redeem(ctx, models.PurposeSignup, code)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkUserVerified(ctx, record.UserID); err != nil {
		return nil, fmt.Errorf("failed to mark user verified: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if s.cfg.WelcomeEmail {
		if err := s.mail.Send(ctx, mailer.TemplateWelcome, user.Email, map[string]any{}); err != nil {
			return nil, fmt.Errorf("failed to send welcome email: %w", err)
		}
	}

	slog.Info("signup_verified", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// RequestPasswordReset issues a reset code for a verified, active account
// and mails it. Every other case fails with ErrResetNotAllowed so the
// response never reveals whether the address has an account.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetNotAllowed
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsVerified || !user.IsActive {
		return nil, ErrResetNotAllowed
	}

	code, _, err := s.codes.Issue(ctx, user.ID, models.PurposePasswordReset, verification.IssueOptions{})
	if err != nil {
		return nil, err
	}

	if err := s.mail.Send(ctx, mailer.TemplatePasswordReset, user.Email, map[string]any{
		"Code":      code,
		"VerifyURL": s.verifyURL("/password-reset/verify", code),
	}); err != nil {
		return nil, fmt.Errorf("failed to send password reset email: %w", err)
	}

	slog.Info("password_reset_requested", "user_id", user.ID)
	return user, nil
}

// ResetPassword redeems a reset code and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) error {
	record, err := s.codes.Check(ctx, models.PurposePasswordReset, code)
	if err != nil {
		return err
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	validation := s.passwordValidator.Validate(newPassword, user.Email)
	if !validation.Valid {
		return &PasswordValidationError{Errors: validation.Errors}
	}

	if _, err := s.codes.Redeem(ctx, models.PurposePasswordReset, code); err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password_reset_completed", "user_id", user.ID)
	return nil
}

// RequestEmailChange stages a new address for the user and mails a
// confirmation code to it. An address held by a verified account rejects
// the request with ErrEmailTaken.
func (s *Service) RequestEmailChange(ctx context.Context, user *models.User, newEmail string) error {
	newEmail, err := normalizeEmail(newEmail)
	if err != nil {
		return ErrInvalidEmail
	}

	holder, err := s.repo.GetUserByEmail(ctx, newEmail)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check new email: %w", err)
	}
	if err == nil && holder.IsVerified {
		return ErrEmailTaken
	}

	if err := s.repo.SetPendingEmail(ctx, user.ID, newEmail); err != nil {
		return fmt.Errorf("failed to stage email: %w", err)
	}

	code, _, err := s.codes.Issue(ctx, user.ID, models.PurposeEmailChange, verification.IssueOptions{NewEmail: newEmail})
	if err != nil {
		return err
	}

	if err := s.mail.Send(ctx, mailer.TemplateEmailChange, newEmail, map[string]any{
		"Code":      code,
		"VerifyURL": s.verifyURL("/email-change/verify", code),
	}); err != nil {
		return fmt.Errorf("failed to send email change email: %w", err)
	}

	slog.Info("email_change_requested", "user_id", user.ID)
	return nil
}

// ConfirmEmailChange redeems an email-change code and promotes the staged
// address to the account's email. An unverified account squatting on the
// address is removed; a verified one rejects the change with ErrEmailTaken.
func (s *Service) ConfirmEmailChange(ctx context.Context, code string) (*models.User, error) {
	record, err := s.codes.Check(ctx, models.PurposeEmailChange, code)
	if err != nil {
		return nil, err
	}

	holder, err := s.repo.GetUserByEmail(ctx, record.NewEmail)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check new email: %w", err)
	}
	if err == nil && holder.ID != record.UserID {
		if holder.IsVerified {
			return nil, ErrEmailTaken
		}
		// The unverified placeholder account gives way to the confirmed
		// owner of the address.
		if err := s.repo.DeleteUser(ctx, holder.ID); err != nil {
			return nil, fmt.Errorf("failed to remove unverified holder: %w", err)
		}
	}

	if _, err := s.codes.Redeem(ctx, models.PurposeEmailChange, code); err != nil {
		return nil, err
	}

	if err := s.repo.PromotePendingEmail(ctx, record.UserID, record.NewEmail); err != nil {
		return nil, fmt.Errorf("failed to promote pending email: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	slog.Info("email_change_completed", "user_id", user.ID)
	return user, nil
}

// ChangePassword changes a user's password when the current one is known.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	validation := s.passwordValidator.Validate(newPassword, user.Email)
	if !validation.Valid {
		return &PasswordValidationError{Errors: validation.Errors}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, userID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password_changed", "user_id", userID)
	return nil
}

// Login authenticates the credentials and issues a fresh bearer token.
// Unverified and inactive accounts fail with errors distinct from bad
// credentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "reason", "user_not_found")
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "invalid_password")
		return "", nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "not_verified")
		return "", nil, ErrUserNotVerified
	}
	if !user.IsActive {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "not_active")
		return "", nil, ErrUserNotActive
	}

	plaintext, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		return "", nil, fmt.Errorf("failed to stamp login: %w", err)
	}

	slog.Info("login_success", "user_id", user.ID)
	return plaintext, user, nil
}

// Logout revokes every token the user holds.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	slog.Info("logout", "user_id", userID)
	return nil
}

func (s *Service) verifyURL(path, code string) string {
	return fmt.Sprintf("%s%s?code=%s", s.mail.BaseURL(), path, url.QueryEscape(code))
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}
