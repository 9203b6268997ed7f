// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"github.com/labstack/echo/v4"
)

// SignupRequest is the request body for creating a signup request.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates a signup request: it stores an unverified account and
// sends a verification email.
func (h *Handlers) Signup(c echo.Context) error {
	var req SignupRequest
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

	user, err := h.auth.Signup(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, user)
}

// SignupVerifyCode verifies that a signup code is valid without redeeming
// it, so clients can check before showing the completion form.
func (h *Handlers) SignupVerifyCode(c echo.Context) error {
	if _, err := h.auth.CheckCode(c.Request().Context(), models.PurposeSignup, c.QueryParam("code")); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "The given code is valid, can proceed to verify signup.")
}

// SignupVerify redeems a signup code and marks the account verified.
func (h *Handlers) SignupVerify(c echo.Context) error {
	if _, err := h.auth.VerifySignup(c.Request().Context(), c.QueryParam("code")); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "User email address has been verified.")
}
