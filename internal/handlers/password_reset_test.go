// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/mailauth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordReset(t *testing.T) {
	env := newHandlerEnv(t)
	testutil.NewTestUser(t, env.Repo, "alice@example.com", "secret", true)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset",
		strings.NewReader(`{"email":"alice@example.com"}`))

	require.NoError(t, env.Handlers.PasswordReset(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "The email with the password reset code will be sent soon.", body["success"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "alice@example.com", env.Mail.Last(t).To)
}

func TestPasswordReset_UnknownEmail(t *testing.T) {
	env := newHandlerEnv(t)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset",
		strings.NewReader(`{"email":"nobody@example.com"}`))

	require.NoError(t, env.Handlers.PasswordReset(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password reset not allowed.", decode(t, rec)["detail"])
}

func TestPasswordReset_MissingEmail(t *testing.T) {
	env := newHandlerEnv(t)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset",
		strings.NewReader(`{}`))

	require.NoError(t, env.Handlers.PasswordReset(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec), "email")
}

func TestPasswordResetVerifyCode(t *testing.T) {
	env := newHandlerEnv(t)
	code := resetCode(t, env, "alice@example.com")

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodGet, "/password-reset/verify?code="+url.QueryEscape(code), nil)
	require.NoError(t, env.Handlers.PasswordResetVerifyCode(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "The given code is valid, can proceed to password reset.", decode(t, rec)["success"])
}

func TestPasswordResetVerify(t *testing.T) {
	env := newHandlerEnv(t)
	code := resetCode(t, env, "alice@example.com")

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset/verify?code="+url.QueryEscape(code),
		strings.NewReader(`{"password":"brand-new-password"}`))

	require.NoError(t, env.Handlers.PasswordResetVerify(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User password has been reset.", decode(t, rec)["success"])

	user, err := env.Repo.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("brand-new-password")))
}

func TestPasswordResetVerify_MissingPassword(t *testing.T) {
	env := newHandlerEnv(t)
	code := resetCode(t, env, "alice@example.com")

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset/verify?code="+url.QueryEscape(code),
		strings.NewReader(`{}`))

	require.NoError(t, env.Handlers.PasswordResetVerify(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec), "password")
}

func TestPasswordResetVerify_InvalidCode(t *testing.T) {
	env := newHandlerEnv(t)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset/verify?code=deadbeef",
		strings.NewReader(`{"password":"brand-new-password"}`))

	require.NoError(t, env.Handlers.PasswordResetVerify(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "The given code is invalid, expired or already used.", decode(t, rec)["detail"])
}

// resetCode creates a verified user, requests a reset and extracts the
// mailed code.
func resetCode(t *testing.T, env *handlerEnv, email string) string {
	t.Helper()
	testutil.NewTestUser(t, env.Repo, email, "secret", true)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/password-reset",
		strings.NewReader(`{"email":"`+email+`"}`))
	require.NoError(t, env.Handlers.PasswordReset(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	return testutil.CodeFromMessage(t, env.Mail.Last(t))
}
