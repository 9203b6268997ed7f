// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" {
			commonPasswords[password] = struct{}{}
		}
	}
}

// PasswordValidator checks new passwords against the account policy.
type PasswordValidator struct {
	MinLength            int
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPasswordValidator returns a validator with sensible defaults.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:            8,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// ValidationError represents a single password validation error.
type ValidationError struct {
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// PasswordValidationError wraps multiple validation errors.
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Message
}

// Messages returns all error messages.
func (e *PasswordValidationError) Messages() []string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Message
	}
	return messages
}

// ValidationResult holds all validation errors.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Validate checks a password against all configured rules. userAttributes
// (email, names) feed the similarity check.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) ValidationResult {
	var errs []ValidationError

	if len(password) < v.MinLength {
		errs = append(errs, ValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", v.MinLength),
		})
	}

	if isEntirelyNumeric(password) {
		errs = append(errs, ValidationError{
			Code:    "entirely_numeric",
			Message: "Password cannot be entirely numeric.",
		})
	}

	if v.CheckCommonPasswords {
		if _, common := commonPasswords[strings.ToLower(password)]; common {
			errs = append(errs, ValidationError{
				Code:    "common_password",
				Message: "This password is too common. Please choose a more secure password.",
			})
		}
	}

	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		errs = append(errs, ValidationError{
			Code:    "too_similar",
			Message: "Password is too similar to your personal information.",
		})
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(password) > 0
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)

	for _, attr := range attributes {
		if attr == "" {
			continue
		}
		attrLower := strings.ToLower(attr)

		// The local part of an email address counts on its own.
		if at := strings.IndexByte(attrLower, '@'); at > 0 {
			if part := attrLower[:at]; len(part) >= 4 && strings.Contains(passwordLower, part) {
				return true
			}
		}

		if strings.Contains(passwordLower, attrLower) || strings.Contains(attrLower, passwordLower) {
			return true
		}
	}

	return false
}
