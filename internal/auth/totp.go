// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"strings"

	"github.com/pquerna/otp/totp"
)

// Instructor accounts may carry a TOTP second factor. The code is validated
// locally before the login request is submitted, so an obviously bad code
// never reaches the backend.

// ErrInvalidTOTP indicates the entered code does not match the secret.
var ErrInvalidTOTP = errors.New("invalid one-time code")

// ValidateTOTP checks a 6-digit one-time code against the shared secret.
// An empty secret means the account has no second factor; any code passes.
func ValidateTOTP(code, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	if !totp.Validate(strings.TrimSpace(code), secret) {
		return ErrInvalidTOTP
	}
	return nil
}
