// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository-level errors. Store implementations wrap these so callers can
// match them with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-swap update lost a race:
	// the row no longer holds the expected value.
	ErrConflict = errors.New("conflict")
)

// User-facing outcomes. None of these indicate a fault; they are resolved at
// the access gate or the operation boundary.
var (
	// ErrUnauthenticated means the request carries no session, or one that no
	// longer resolves.
	ErrUnauthenticated = errors.New("sign in required")

	// ErrAccountNotActive means the account status is anything but active.
	ErrAccountNotActive = errors.New("account not active")

	// ErrEmailNotVerified means the capability gate requires a verified email.
	ErrEmailNotVerified = errors.New("verify your email")

	// ErrInvalidOrExpiredToken covers every verification or reactivation token
	// failure: unknown, expired, already consumed, bad signature, wrong purpose.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrDuplicateEmail means another account already uses the normalized email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials never distinguishes an unknown email from a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidTransition means the lifecycle table has no edge between the
	// current and the requested status.
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Input validation errors.
var (
	ErrInvalidEmail     = errors.New("email address is invalid")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrPasswordMismatch = errors.New("password confirmation does not match")
)

// Stable error codes, readable with errutil.Code.
const (
	CodeUnauthenticated       = "AUTH_UNAUTHENTICATED"
	CodeAccountNotActive      = "AUTH_ACCOUNT_NOT_ACTIVE"
	CodeEmailNotVerified      = "AUTH_EMAIL_NOT_VERIFIED"
	CodeInvalidOrExpiredToken = "AUTH_INVALID_OR_EXPIRED_TOKEN"
	CodeDuplicateEmail        = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidEmail          = "AUTH_INVALID_EMAIL"
	CodeInvalidPassword       = "AUTH_INVALID_PASSWORD"
	CodeInvalidTransition     = "AUTH_INVALID_TRANSITION"
)

var outcomeCodes = map[error]string{
	ErrUnauthenticated:       CodeUnauthenticated,
	ErrAccountNotActive:      CodeAccountNotActive,
	ErrEmailNotVerified:      CodeEmailNotVerified,
	ErrInvalidOrExpiredToken: CodeInvalidOrExpiredToken,
	ErrDuplicateEmail:        CodeDuplicateEmail,
	ErrInvalidCredentials:    CodeInvalidCredentials,
	ErrInvalidTransition:     CodeInvalidTransition,
	ErrInvalidEmail:          CodeInvalidEmail,
	ErrEmptyPassword:         CodeInvalidPassword,
	ErrPasswordTooLong:       CodeInvalidPassword,
	ErrPasswordMismatch:      CodeInvalidPassword,
}

// Reject wraps one of the outcome sentinels with its stable code and optional
// key/value context. The result still matches the sentinel with errors.Is.
func Reject(sentinel error, kv ...any) error {
	builder := oops.Code(outcomeCodes[sentinel])
	if len(kv) > 0 {
		builder = builder.With(kv...)
	}
	return builder.Wrap(sentinel)
}

// IsValidationError reports whether err is an input validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrEmptyPassword) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrPasswordMismatch)
}
