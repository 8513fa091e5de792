// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified when no account matches the email so the
// response time does not reveal whether the account exists. It never matches.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Credentials is the credential store: account creation, lookup by email and
// password verification.
type Credentials struct {
	store  Store
	hasher PasswordHasher
	settings
}

// NewCredentials creates a Credentials store.
func NewCredentials(store Store, hasher PasswordHasher, opts ...Option) (*Credentials, error) {
	if store == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("store is required")
	}
	if hasher == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("password hasher is required")
	}
	return &Credentials{store: store, hasher: hasher, settings: newSettings(opts)}, nil
}

func (c *Credentials) in(tx Store) *Credentials {
	cp := *c
	cp.store = tx
	return &cp
}

// CreateAccount stores a new active, unverified account. The email is
// normalized before the uniqueness check, which the store enforces.
func (c *Credentials) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password, password); err != nil {
		return nil, err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(email, hash, c.clock())
	if err != nil {
		return nil, err
	}
	if err := c.store.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, Reject(ErrDuplicateEmail)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "persist account").Wrap(err)
	}
	return account, nil
}

// FindByEmail looks an account up by email. A missing account is ErrNotFound.
func (c *Credentials) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := c.store.Accounts().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "get account by email").Wrap(err)
	}
	return account, nil
}

// VerifyCredential checks password against the account's stored hash.
func (c *Credentials) VerifyCredential(account *Account, password string) (bool, error) {
	if account == nil || len(password) > MaxPasswordBytes {
		return false, nil
	}
	return c.hasher.Verify(password, account.PasswordHash)
}

// Authenticate finds the account for email and verifies password. An unknown
// email and a wrong password both return ErrInvalidCredentials after the same
// amount of hashing work. The account's status is not consulted; callers
// decide what a non-active account may do.
func (c *Credentials) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := c.FindByEmail(ctx, email)
	exists := true
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		exists = false
	}

	target := dummyPasswordHash
	if exists {
		target = account.PasswordHash
	}

	valid, verifyErr := c.hasher.Verify(password, target)
	if verifyErr != nil {
		if !exists {
			return nil, Reject(ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_SIGN_IN_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(verifyErr)
	}
	if !exists || !valid || len(password) > MaxPasswordBytes {
		return nil, Reject(ErrInvalidCredentials)
	}

	if c.hasher.NeedsUpgrade(account.PasswordHash) {
		c.upgradeHash(ctx, account, password)
	}
	return account, nil
}

// ChangePassword validates and stores a new password.
func (c *Credentials) ChangePassword(ctx context.Context, account *Account, password, confirmation string) error {
	if err := ValidatePassword(password, confirmation); err != nil {
		return err
	}
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return oops.Code("PASSWORD_UPDATE_FAILED").With("operation", "hash password").Wrap(err)
	}
	now := c.clock()
	if err := c.store.Accounts().UpdatePassword(ctx, account.ID, hash, now); err != nil {
		return oops.Code("PASSWORD_UPDATE_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	account.PasswordHash = hash
	account.UpdatedAt = now
	return nil
}

// upgradeHash re-hashes a legacy password. Failure is logged and sign-in proceeds.
func (c *Credentials) upgradeHash(ctx context.Context, account *Account, password string) {
	hash, err := c.hasher.Hash(password)
	if err == nil {
		err = c.store.Accounts().UpdatePassword(ctx, account.ID, hash, c.clock())
	}
	if err != nil {
		c.logger.WarnContext(ctx, "password hash upgrade failed",
			"account_id", account.ID.String(),
			"error", err)
		return
	}
	account.PasswordHash = hash
	c.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
}
