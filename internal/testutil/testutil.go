// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/mailauth/internal/config"
	"codeberg.org/oliverandrich/mailauth/internal/database"
	"codeberg.org/oliverandrich/mailauth/internal/models"
	"codeberg.org/oliverandrich/mailauth/internal/repository"
	"codeberg.org/oliverandrich/mailauth/internal/services/auth"
	"codeberg.org/oliverandrich/mailauth/internal/services/mailer"
	"codeberg.org/oliverandrich/mailauth/internal/services/token"
	"codeberg.org/oliverandrich/mailauth/internal/services/verification"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates a user with the given password. Verified users are
// active and ready to log in.
func NewTestUser(t *testing.T, repo *repository.Repository, email, password string, verified bool) *models.User {
	t.Helper()
	ctx := context.Background()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:        email,
		PasswordHash: string(passwordHash),
		IsVerified:   verified,
		IsActive:     true,
	}
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

// MailRecorder captures messages instead of sending them.
type MailRecorder struct {
	mu       sync.Mutex
	messages []*mailer.Message
}

// SendFunc returns a send callable that records every message.
func (r *MailRecorder) SendFunc() mailer.SendFunc {
	return func(_ context.Context, msg *mailer.Message) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, msg)
		return nil
	}
}

// Messages returns the captured messages in send order.
func (r *MailRecorder) Messages() []*mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mailer.Message(nil), r.messages...)
}

// Last returns the most recently captured message and fails the test when
// nothing was sent.
func (r *MailRecorder) Last(t *testing.T) *mailer.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.messages, "no email captured")
	return r.messages[len(r.messages)-1]
}

// Env bundles the full service stack on an in-memory database with a
// capturing mailer.
type Env struct {
	DB     *sqlx.DB
	Repo   *repository.Repository
	Codes  *verification.Service
	Tokens *token.Service
	Auth   *auth.Service
	Mail   *MailRecorder
	Config *config.AuthConfig
}

// NewEnv creates a ready-to-use service stack for tests.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	db, repo := NewTestDB(t)
	recorder := &MailRecorder{}

	smtp := &config.SMTPConfig{From: "noreply@example.com", FromName: "Example"}
	mail, err := mailer.New(smtp, "https://example.com", mailer.WithSendFunc(recorder.SendFunc()))
	require.NoError(t, err)

	authCfg := &config.AuthConfig{CodeTTL: 24, WelcomeEmail: true}
	codes := verification.NewService(repo, time.Duration(authCfg.CodeTTL)*time.Hour)
	tokens := token.NewService(repo)

	return &Env{
		DB:     db,
		Repo:   repo,
		Codes:  codes,
		Tokens: tokens,
		Auth:   auth.NewService(repo, codes, mail, tokens, authCfg),
		Mail:   recorder,
		Config: authCfg,
	}
}

var codePattern = regexp.MustCompile(`code=([0-9a-f]+)`)

// CodeFromMessage extracts the verification code from a captured email.
func CodeFromMessage(t *testing.T, msg *mailer.Message) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(msg.Text)
	require.Len(t, m, 2, "no verification code found in message body")
	return m[1]
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
