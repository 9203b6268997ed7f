// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// PasswordChangeRequest is the request body for changing the password.
type PasswordChangeRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

// PasswordChange changes the authenticated user's password after checking
// the current one.
func (h *Handlers) PasswordChange(c echo.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return detail(c, http.StatusUnauthorized, "Authentication required.")
	}

	var req PasswordChangeRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body.")
	}
	if req.Password == "" || req.NewPassword == "" {
		fields := map[string][]string{}
		if req.Password == "" {
			fields["password"] = []string{"This field is required."}
		}
		if req.NewPassword == "" {
			fields["new_password"] = []string{"This field is required."}
		}
		return fieldErrors(c, fields)
	}

	err := h.auth.ChangePassword(c.Request().Context(), user.ID, req.Password, req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return detail(c, http.StatusBadRequest, "The given password does not match the user password.")
		}
		return fail(c, err)
	}

	return success(c, http.StatusOK, "Password has been changed.")
}
