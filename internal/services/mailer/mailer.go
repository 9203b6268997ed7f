// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mailer renders templated emails and dispatches them through a
// pluggable send callable.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"strings"
	texttemplate "text/template"

	"codeberg.org/oliverandrich/mailauth/internal/config"
)

//go:embed templates/*
var embeddedTemplates embed.FS

// Template prefixes for the emails this service sends.
const (
	TemplateSignup        = "signup"
	TemplatePasswordReset = "password_reset"
	TemplateEmailChange   = "email_change"
	TemplateWelcome       = "welcome"
)

// Message is a fully rendered email ready for dispatch.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	Text     string
	HTML     string
}

// SendFunc dispatches a rendered message. The default implementation sends
// synchronously over SMTP; substitute a queue-backed callable for deferred
// delivery. Retry policy belongs to the substituted callable, not to the
// mailer.
type SendFunc func(ctx context.Context, msg *Message) error

// Mailer renders the three artifacts of an email (subject, html body, text
// body) from a template folder and hands them to the send callable.
type Mailer struct {
	templates fs.FS
	send      SendFunc
	from      string
	fromName  string
	baseURL   string
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSendFunc replaces the default SMTP send callable.
func WithSendFunc(send SendFunc) Option {
	return func(m *Mailer) { m.send = send }
}

// WithTemplateDir resolves templates from a directory instead of the
// embedded defaults.
func WithTemplateDir(dir string) Option {
	return func(m *Mailer) { m.templates = os.DirFS(dir) }
}

// New creates a Mailer. Without options it sends via SMTP using the given
// configuration and renders the embedded default templates.
func New(cfg *config.SMTPConfig, baseURL string, opts ...Option) (*Mailer, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return nil, fmt.Errorf("embedded templates missing: %w", err)
	}

	m := &Mailer{
		templates: sub,
		from:      cfg.From,
		fromName:  cfg.FromName,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.send == nil {
		if cfg.Host == "" {
			return nil, fmt.Errorf("SMTP host is required")
		}
		m.send = NewSMTPSender(cfg)
	}

	return m, nil
}

// BaseURL returns the base URL used in verification links.
func (m *Mailer) BaseURL() string {
	return m.baseURL
}

// Send renders the email identified by prefix with the given context data
// and dispatches it to the recipient. Rendering errors are fatal for the
// calling operation.
func (m *Mailer) Send(ctx context.Context, prefix, to string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	data["BaseURL"] = m.baseURL

	subject, err := m.renderText(prefix+"_subject.txt", data)
	if err != nil {
		return fmt.Errorf("failed to render subject: %w", err)
	}
	text, err := m.renderText(prefix+".txt", data)
	if err != nil {
		return fmt.Errorf("failed to render text body: %w", err)
	}
	html, err := m.renderHTML(prefix+".html", data)
	if err != nil {
		return fmt.Errorf("failed to render html body: %w", err)
	}

	msg := &Message{
		From:     m.from,
		FromName: m.fromName,
		To:       to,
		Subject:  strings.Join(strings.Fields(subject), " "),
		Text:     text,
		HTML:     html,
	}

	return m.send(ctx, msg)
}

func (m *Mailer) renderText(name string, data map[string]any) (string, error) {
	raw, err := fs.ReadFile(m.templates, name)
	if err != nil {
		return "", err
	}
	tmpl, err := texttemplate.New(name).Parse(string(raw))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (m *Mailer) renderHTML(name string, data map[string]any) (string, error) {
	raw, err := fs.ReadFile(m.templates, name)
	if err != nil {
		return "", err
	}
	tmpl, err := htmltemplate.New(name).Parse(string(raw))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
