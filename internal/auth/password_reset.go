// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordFingerprint derives the binding embedded in password reset links.
// It changes whenever the password hash changes, which retires old links.
func PasswordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

// PasswordResets handles password reset operations over signed links.
type PasswordResets struct {
	store       Store
	credentials *Credentials
	signer      TokenSigner
	settings
}

// NewPasswordResets creates a new PasswordResets service.
func NewPasswordResets(store Store, hasher PasswordHasher, signer TokenSigner, opts ...Option) (*PasswordResets, error) {
	if signer == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("token signer is required")
	}
	credentials, err := NewCredentials(store, hasher, opts...)
	if err != nil {
		return nil, err
	}
	return &PasswordResets{
		store:       store,
		credentials: credentials,
		signer:      signer,
		settings:    newSettings(opts),
	}, nil
}

// RequestReset returns a reset token when email belongs to an account.
// For an unknown email it returns an empty token, a nil account and no error.
func (p *PasswordResets) RequestReset(ctx context.Context, email string) (string, *Account, error) {
	account, err := p.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, oops.Code("RESET_REQUEST_FAILED").Wrap(err)
	}

	token, err := p.signer.Sign(PurposePasswordReset, account.ID.String(), PasswordFingerprint(account.PasswordHash), p.passwordResetTTL)
	if err != nil {
		return "", nil, oops.Code("RESET_REQUEST_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return token, account, nil
}

// ValidateToken returns the account a reset token was issued for. Every
// failure, including a password changed since issue, is ErrInvalidOrExpiredToken.
func (p *PasswordResets) ValidateToken(ctx context.Context, token string) (*Account, error) {
	subject, binding, err := p.signer.Verify(PurposePasswordReset, token)
	if err != nil {
		return nil, Reject(ErrInvalidOrExpiredToken)
	}
	id, err := ulid.Parse(subject)
	if err != nil {
		return nil, Reject(ErrInvalidOrExpiredToken)
	}

	account, err := p.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Reject(ErrInvalidOrExpiredToken)
		}
		return nil, oops.Code("RESET_VALIDATE_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}

	current := PasswordFingerprint(account.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(current), []byte(binding)) != 1 {
		return nil, Reject(ErrInvalidOrExpiredToken, "account_id", id.String())
	}
	return account, nil
}

// ResetPassword stores a new password for the token's account and destroys
// all of the account's sessions in the same transaction.
func (p *PasswordResets) ResetPassword(ctx context.Context, token, password, confirmation string) (*Account, error) {
	account, err := p.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password, confirmation); err != nil {
		return nil, err
	}

	var destroyed int64
	err = p.store.InTx(ctx, func(tx Store) error {
		if err := p.credentials.in(tx).ChangePassword(ctx, account, password, confirmation); err != nil {
			return err
		}
		n, err := tx.Sessions().DeleteByAccount(ctx, account.ID)
		destroyed = n
		return err
	})
	if err != nil {
		return nil, oops.Code("RESET_PASSWORD_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if destroyed > 0 {
		SessionsDestroyed.Add(float64(destroyed))
	}
	p.logger.InfoContext(ctx, "password reset",
		"account_id", account.ID.String(),
		"sessions_destroyed", destroyed)
	return account, nil
}
