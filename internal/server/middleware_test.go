// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/mailauth/internal/handlers"
	"codeberg.org/oliverandrich/mailauth/internal/services/token"
	"codeberg.org/oliverandrich/mailauth/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAuthTestServer wires an echo instance with the token middleware and a
// probe route that reports the authenticated user.
func newAuthTestServer(t *testing.T) (*echo.Echo, *token.Service, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)

	e := echo.New()
	e.Use(tokenAuth(env.Tokens))
	e.GET("/whoami", func(c echo.Context) error {
		user := handlers.CurrentUser(c)
		if user == nil {
			return c.JSON(http.StatusOK, map[string]string{"user": "anonymous"})
		}
		return c.JSON(http.StatusOK, map[string]string{"user": user.Email})
	}, requireAuth)
	e.GET("/open", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return e, env.Tokens, env
}

func TestTokenAuth_ValidToken(t *testing.T) {
	e, tokens, env := newAuthTestServer(t)
	user := testutil.NewTestUser(t, env.Repo, "alice@example.com", "secret", true)
	plaintext, err := tokens.Issue(context.Background(), user.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Token "+plaintext)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")
}

func TestTokenAuth_MissingHeaderPassesThroughAnonymously(t *testing.T) {
	e, _, _ := newAuthTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenAuth_RequireAuthRejectsAnonymous(t *testing.T) {
	e, _, _ := newAuthTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication required.")
}

func TestTokenAuth_WrongScheme(t *testing.T) {
	e, _, _ := newAuthTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer something")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid authorization header.")
}

func TestTokenAuth_InvalidToken(t *testing.T) {
	e, _, _ := newAuthTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Token bogus")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token.")
}

func TestTokenAuth_RevokedToken(t *testing.T) {
	e, tokens, env := newAuthTestServer(t)
	user := testutil.NewTestUser(t, env.Repo, "alice@example.com", "secret", true)
	plaintext, err := tokens.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	require.NoError(t, tokens.RevokeAll(context.Background(), user.ID))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Token "+plaintext)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssuanceRateLimiter_Disabled(t *testing.T) {
	e := echo.New()
	e.POST("/signup", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, issuanceRateLimiter(0))

	for range 20 {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestIssuanceRateLimiter_ThrottlesBursts(t *testing.T) {
	e := echo.New()
	e.POST("/signup", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, issuanceRateLimiter(1))

	var limited bool
	for range 20 {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)
}
