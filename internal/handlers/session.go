// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// LoginRequest is the request body for obtaining an auth token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates the credentials and returns a fresh bearer token.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body.")
	}
	if req.Email == "" || req.Password == "" {
		fields := map[string][]string{}
		if req.Email == "" {
			fields["email"] = []string{"This field is required."}
		}
		if req.Password == "" {
			fields["password"] = []string{"This field is required."}
		}
		return fieldErrors(c, fields)
	}

	plaintext, _, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return detail(c, http.StatusUnauthorized, "Unable to log in with provided credentials.")
		case errors.Is(err, auth.ErrUserNotVerified):
			return detail(c, http.StatusUnauthorized, "User account not verified.")
		case errors.Is(err, auth.ErrUserNotActive):
			return detail(c, http.StatusUnauthorized, "User account not active.")
		default:
			return fail(c, err)
		}
	}

	// Tokens must never end up in shared caches.
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, map[string]string{"token": plaintext})
}

// Logout revokes every token the authenticated user holds.
func (h *Handlers) Logout(c echo.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return detail(c, http.StatusUnauthorized, "Authentication required.")
	}

	if err := h.auth.Logout(c.Request().Context(), user.ID); err != nil {
		return fail(c, err)
	}

	return success(c, http.StatusOK, "User logged out.")
}
