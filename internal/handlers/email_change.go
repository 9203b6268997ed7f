// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"github.com/labstack/echo/v4"
)

// EmailChangeRequest is the request body for creating an email change
// request.
type EmailChangeRequest struct {
	Email string `json:"email"`
}

// EmailChange stages a new email address for the authenticated user and
// mails a confirmation code to it.
func (h *Handlers) EmailChange(c echo.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return detail(c, http.StatusUnauthorized, "Authentication required.")
	}

	var req EmailChangeRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body.")
	}
	if req.Email == "" {
		return fieldErrors(c, map[string][]string{
			"email": {"This field is required."},
		})
	}

	if err := h.auth.RequestEmailChange(c.Request().Context(), user, req.Email); err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"success": "The email with the email change code will be sent soon.",
		"email":   req.Email,
	})
}

// EmailChangeVerifyCode verifies an email change code without redeeming it.
func (h *Handlers) EmailChangeVerifyCode(c echo.Context) error {
	if _, err := h.auth.CheckCode(c.Request().Context(), models.PurposeEmailChange, c.QueryParam("code")); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "The given code is valid, can proceed to email change.")
}

// EmailChangeVerify redeems an email change code and promotes the staged
// address to the account's email.
func (h *Handlers) EmailChangeVerify(c echo.Context) error {
	if _, err := h.auth.ConfirmEmailChange(c.Request().Context(), c.QueryParam("code")); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "Email address has been changed.")
}
