// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/mailauth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup",
		strings.NewReader(`{"email":"alice@example.com","password":"correct-horse-battery"}`))

	require.NoError(t, env.Handlers.Signup(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, false, body["is_verified"])
	assert.NotContains(t, rec.Body.String(), "password")

	assert.Equal(t, "alice@example.com", env.Mail.Last(t).To)
}

func TestSignup_MissingFields(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup",
		strings.NewReader(`{}`))

	require.NoError(t, env.Handlers.Signup(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.Contains(t, body, "email")
	assert.Contains(t, body, "password")
}

func TestSignup_EmailTaken(t *testing.T) {
	env := newHandlerEnv(t)
	testutil.NewTestUser(t, env.Repo, "alice@example.com", "secret", true)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup",
		strings.NewReader(`{"email":"alice@example.com","password":"correct-horse-battery"}`))

	require.NoError(t, env.Handlers.Signup(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email address already taken.", decode(t, rec)["detail"])
}

func TestSignup_WeakPassword(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup",
		strings.NewReader(`{"email":"alice@example.com","password":"123"}`))

	require.NoError(t, env.Handlers.Signup(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec), "password")
}

func TestSignupVerifyCode(t *testing.T) {
	env := newHandlerEnv(t)
	code := signupCode(t, env, "alice@example.com")

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodGet, "/signup/verify?code="+url.QueryEscape(code), nil)
	require.NoError(t, env.Handlers.SignupVerifyCode(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "The given code is valid, can proceed to verify signup.", decode(t, rec)["success"])

	// The precheck leaves the code unredeemed.
	c, rec = testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup/verify?code="+url.QueryEscape(code), nil)
	require.NoError(t, env.Handlers.SignupVerify(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupVerify(t *testing.T) {
	env := newHandlerEnv(t)
	code := signupCode(t, env, "alice@example.com")

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup/verify?code="+url.QueryEscape(code), nil)
	require.NoError(t, env.Handlers.SignupVerify(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User email address has been verified.", decode(t, rec)["success"])

	// Resubmission fails with the uniform invalid-code message.
	c, rec = testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup/verify?code="+url.QueryEscape(code), nil)
	require.NoError(t, env.Handlers.SignupVerify(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "The given code is invalid, expired or already used.", decode(t, rec)["detail"])
}

func TestSignupVerify_MissingCode(t *testing.T) {
	env := newHandlerEnv(t)

	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup/verify", nil)
	require.NoError(t, env.Handlers.SignupVerify(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// signupCode runs the signup handler and extracts the mailed code.
func signupCode(t *testing.T, env *handlerEnv, email string) string {
	t.Helper()
	c, rec := testutil.NewEchoContext(env.Echo, http.MethodPost, "/signup",
		strings.NewReader(`{"email":"`+email+`","password":"correct-horse-battery"}`))
	require.NoError(t, env.Handlers.Signup(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	return testutil.CodeFromMessage(t, env.Mail.Last(t))
}
