// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mailer

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/mailauth/internal/config"
	"github.com/wneessen/go-mail"
)

// NewSMTPSender returns the default synchronous send callable backed by
// go-mail. Each call dials the configured SMTP server, delivers the message
// and closes the connection.
func NewSMTPSender(cfg *config.SMTPConfig) SendFunc {
	return func(ctx context.Context, m *Message) error {
		msg := mail.NewMsg()

		if m.FromName != "" {
			if err := msg.FromFormat(m.FromName, m.From); err != nil {
				return fmt.Errorf("setting from address: %w", err)
			}
		} else {
			if err := msg.From(m.From); err != nil {
				return fmt.Errorf("setting from address: %w", err)
			}
		}

		if err := msg.To(m.To); err != nil {
			return fmt.Errorf("setting to address: %w", err)
		}

		msg.Subject(m.Subject)
		msg.SetBodyString(mail.TypeTextPlain, m.Text)
		if m.HTML != "" {
			msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
		}

		// Build client options
		opts := []mail.Option{
			mail.WithPort(cfg.Port),
		}

		// Configure TLS based on config and port
		if cfg.TLS {
			opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
			// Use implicit TLS (SSL) for port 465, STARTTLS for others
			if cfg.Port == 465 {
				opts = append(opts, mail.WithSSL())
			}
		} else {
			opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
		}

		// Add authentication if credentials are provided
		if cfg.Username != "" && cfg.Password != "" {
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(cfg.Password),
			)
		}

		client, err := mail.NewClient(cfg.Host, opts...)
		if err != nil {
			return fmt.Errorf("creating mail client: %w", err)
		}

		return client.DialAndSendWithContext(ctx, msg)
	}
}
