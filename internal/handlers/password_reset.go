// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"github.com/labstack/echo/v4"
)

// PasswordResetRequest is the request body for creating a reset request.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetVerifyRequest is the request body for completing a reset.
type PasswordResetVerifyRequest struct {
	Password string `json:"password"`
}

// PasswordReset creates a password reset request and mails a reset code.
func (h *Handlers) PasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body.")
	}
	if req.Email == "" {
		return fieldErrors(c, map[string][]string{
			"email": {"This field is required."},
		})
	}

	user, err := h.auth.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"success": "The email with the password reset code will be sent soon.",
		"email":   user.Email,
	})
}

// PasswordResetVerifyCode verifies a reset code without redeeming it.
func (h *Handlers) PasswordResetVerifyCode(c echo.Context) error {
	if _, err := h.auth.CheckCode(c.Request().Context(), models.PurposePasswordReset, c.QueryParam("code")); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "The given code is valid, can proceed to password reset.")
}

// PasswordResetVerify redeems a reset code and sets the new password.
func (h *Handlers) PasswordResetVerify(c echo.Context) error {
	var req PasswordResetVerifyRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body.")
	}
	if req.Password == "" {
		return fieldErrors(c, map[string][]string{
			"password": {"This field is required."},
		})
	}

	if err := h.auth.ResetPassword(c.Request().Context(), c.QueryParam("code"), req.Password); err != nil {
		return fail(c, err)
	}

	return success(c, http.StatusOK, "User password has been reset.")
}
