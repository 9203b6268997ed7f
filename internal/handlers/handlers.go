// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains the JSON HTTP handlers for the account flows.
package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"codeberg.org/oliverandrich/mailauth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// ContextKeyUser is the echo context key under which the authentication
// middleware stores the current user.
const ContextKeyUser = "auth_user"

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth *auth.Service
}

// New creates a new Handlers instance.
func New(authService *auth.Service) *Handlers {
	return &Handlers{auth: authService}
}

// CurrentUser returns the authenticated user from the request context, or
// nil for anonymous requests.
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(ContextKeyUser).(*models.User)
	return user
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
