// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/mailauth/internal/config"
	"codeberg.org/oliverandrich/mailauth/internal/handlers"
	"codeberg.org/oliverandrich/mailauth/internal/services/token"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config, tokens *token.Service) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(tokenAuth(tokens))
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// tokenAuth resolves an "Authorization: Token <key>" header to a user and
// stores it in the request context. Requests without the header pass
// through anonymously; a presented but invalid token is rejected.
func tokenAuth(tokens *token.Service) echo.MiddlewareFunc {
	const scheme = "Token "

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}
			if !strings.HasPrefix(header, scheme) {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"detail": "Invalid authorization header.",
				})
			}

			user, err := tokens.Authenticate(c.Request().Context(), strings.TrimSpace(header[len(scheme):]))
			if err != nil {
				if errors.Is(err, token.ErrInvalidToken) {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"detail": "Invalid token.",
					})
				}
				return err
			}

			c.Set(handlers.ContextKeyUser, user)
			return next(c)
		}
	}
}

// requireAuth rejects anonymous requests.
func requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if handlers.CurrentUser(c) == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"detail": "Authentication required.",
			})
		}
		return next(c)
	}
}

// issuanceRateLimiter throttles the endpoints that generate codes and send
// email, per client IP. A zero limit disables throttling.
func issuanceRateLimiter(requestsPerSecond int) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.RateLimiter(
		middleware.NewRateLimiterMemoryStore(rate.Limit(requestsPerSecond)),
	)
}
