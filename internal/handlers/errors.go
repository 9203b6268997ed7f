// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

const msgInvalidCode = "The given code is invalid, expired or already used."

// detail writes a request-level error as {"detail": ...}.
func detail(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"detail": message})
}

// success writes a success message as {"success": ...}.
func success(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"success": message})
}

// fieldErrors writes field-level validation errors keyed by field name.
func fieldErrors(c echo.Context, fields map[string][]string) error {
	return c.JSON(http.StatusBadRequest, fields)
}

// fail translates service errors into the common JSON error responses.
// Handler-specific cases (login status codes, password-change mismatch) are
// handled before calling this.
func fail(c echo.Context, err error) error {
	var pwErr *auth.PasswordValidationError

	switch {
	case errors.Is(err, auth.ErrInvalidCode):
		return detail(c, http.StatusBadRequest, msgInvalidCode)
	case errors.Is(err, auth.ErrEmailTaken):
		return detail(c, http.StatusBadRequest, "Email address already taken.")
	case errors.Is(err, auth.ErrInvalidEmail):
		return fieldErrors(c, map[string][]string{
			"email": {"Enter a valid email address."},
		})
	case errors.Is(err, auth.ErrResetNotAllowed):
		return detail(c, http.StatusBadRequest, "Password reset not allowed.")
	case errors.As(err, &pwErr):
		return fieldErrors(c, map[string][]string{
			"password": pwErr.Messages(),
		})
	default:
		slog.Error("request_failed", "path", c.Path(), "error", err)
		return detail(c, http.StatusInternalServerError, "Internal server error.")
	}
}
