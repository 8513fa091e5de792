// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store is the persistence boundary of the auth core. Repositories returned by
// a Store obtained inside InTx share that transaction.
type Store interface {
	Accounts() AccountRepository
	Sessions() SessionRepository

	// InTx runs fn inside one transaction. Returning an error rolls back every
	// write made through tx. Calling InTx on a transactional Store runs fn in
	// the existing transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// AccountRepository manages account persistence.
//
// Email and digest uniqueness are enforced by the implementation, not by
// callers checking first.
type AccountRepository interface {
	// Create stores a new account. Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by its normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByVerificationDigest retrieves the account holding an outstanding
	// verification token with this digest.
	GetByVerificationDigest(ctx context.Context, digest string) (*Account, error)

	// SetVerificationToken stores a token digest and issue time, replacing any
	// outstanding token. Returns ErrConflict once the email is verified.
	SetVerificationToken(ctx context.Context, id ulid.ULID, digest string, sentAt time.Time) error

	// ConsumeVerificationToken marks the email verified and clears the token,
	// but only while the account still holds digest. Returns ErrConflict when
	// the token was already consumed or replaced.
	ConsumeVerificationToken(ctx context.Context, id ulid.ULID, digest string, verifiedAt time.Time) error

	// UpdateStatus moves the account from one status to another. Returns
	// ErrConflict when the current status is not from.
	UpdateStatus(ctx context.Context, id ulid.ULID, from, to Status, at time.Time) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)

	// ListByAccount returns the account's sessions, oldest first.
	ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*Session, error)

	// Delete removes a session. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByAccount removes every session of an account and returns how many
	// were removed.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error)
}
