// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxPasswordBytes is the longest accepted password, in bytes. It matches the
// bcrypt input limit so legacy hashes and new hashes accept the same inputs.
const MaxPasswordBytes = 72

// Status is the lifecycle state of an account.
type Status string

// The closed set of account statuses.
const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
	StatusSuspended   Status = "suspended"
	StatusBanned      Status = "banned"
	StatusAnonymised  Status = "anonymised"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusActive, StatusDeactivated, StatusSuspended, StatusBanned, StatusAnonymised}

// ParseStatus converts a stored or user-supplied value into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusDeactivated, StatusSuspended, StatusBanned, StatusAnonymised:
		return Status(s), nil
	default:
		return "", oops.Code("AUTH_UNKNOWN_STATUS").With("status", s).Errorf("unknown account status %q", s)
	}
}

func (s Status) String() string { return string(s) }

// Account is an identity together with its lifecycle record.
type Account struct {
	ID                      ulid.ULID
	Email                   string
	PasswordHash            string
	Status                  Status
	EmailVerifiedAt         *time.Time
	VerificationTokenDigest *string
	VerificationSentAt      *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewAccount builds an active, unverified account. The email is normalized.
func NewAccount(email, passwordHash string, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsEmailVerified reports whether the email address has been confirmed.
func (a *Account) IsEmailVerified() bool {
	return a.EmailVerifiedAt != nil
}

// CanAuthenticate reports whether the account may hold a session.
func (a *Account) CanAuthenticate() bool {
	switch a.Status {
	case StatusActive:
		return true
	case StatusDeactivated, StatusSuspended, StatusBanned, StatusAnonymised:
		return false
	default:
		return false
	}
}

// HasPendingVerification reports whether a verification token is outstanding.
func (a *Account) HasPendingVerification() bool {
	return a.VerificationTokenDigest != nil && a.VerificationSentAt != nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address such as "a@x.com".
// Display names ("Ann <a@x.com>") are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return Reject(ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return Reject(ErrInvalidEmail, "email", email)
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return Reject(ErrInvalidEmail, "email", email)
	}
	return nil
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirmation string) error {
	if password == "" {
		return Reject(ErrEmptyPassword)
	}
	if len(password) > MaxPasswordBytes {
		return Reject(ErrPasswordTooLong, "max_bytes", MaxPasswordBytes)
	}
	if password != confirmation {
		return Reject(ErrPasswordMismatch)
	}
	return nil
}
