// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the HTTP server, routes and middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/mailauth/internal/config"
	"codeberg.org/oliverandrich/mailauth/internal/database"
	"codeberg.org/oliverandrich/mailauth/internal/handlers"
	"codeberg.org/oliverandrich/mailauth/internal/repository"
	"codeberg.org/oliverandrich/mailauth/internal/services/auth"
	"codeberg.org/oliverandrich/mailauth/internal/services/mailer"
	"codeberg.org/oliverandrich/mailauth/internal/services/token"
	"codeberg.org/oliverandrich/mailauth/internal/services/verification"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// Repository and services
	repo := repository.New(db)
	codes := verification.NewService(repo, time.Duration(cfg.Auth.CodeTTL)*time.Hour)
	tokens := token.NewService(repo)

	var mailOpts []mailer.Option
	if cfg.Auth.TemplateDir != "" {
		mailOpts = append(mailOpts, mailer.WithTemplateDir(cfg.Auth.TemplateDir))
	}
	mail, err := mailer.New(&cfg.SMTP, cfg.Server.BaseURL, mailOpts...)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	authService := auth.NewService(repo, codes, mail, tokens, &cfg.Auth)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg, tokens)
	setupRoutes(e, cfg, authService)

	return startWithGracefulShutdown(e, cfg)
}

func setupRoutes(e *echo.Echo, cfg *config.Config, authService *auth.Service) {
	h := handlers.New(authService)
	limited := issuanceRateLimiter(cfg.Server.RateLimit)

	e.GET("/health", h.Health)

	e.POST("/signup", h.Signup, limited)
	e.GET("/signup/verify", h.SignupVerifyCode)
	e.POST("/signup/verify", h.SignupVerify)

	e.POST("/password-reset", h.PasswordReset, limited)
	e.GET("/password-reset/verify", h.PasswordResetVerifyCode)
	e.POST("/password-reset/verify", h.PasswordResetVerify)

	e.POST("/email-change", h.EmailChange, requireAuth, limited)
	e.GET("/email-change/verify", h.EmailChangeVerifyCode)
	e.POST("/email-change/verify", h.EmailChangeVerify)

	e.POST("/password", h.PasswordChange, requireAuth)

	e.POST("/login", h.Login)
	e.POST("/logout", h.Logout, requireAuth)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
