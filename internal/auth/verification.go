// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
)

// VerificationTokenBytes is the entropy of an email verification token.
const VerificationTokenBytes = 32

// GenerateVerificationToken creates a random URL-safe token and its digest.
// Only the digest is ever stored.
func GenerateVerificationToken() (token, digest string, err error) {
	raw := make([]byte, VerificationTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("VERIFICATION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", VerificationTokenBytes).
			Wrap(err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, DigestVerificationToken(token), nil
}

// DigestVerificationToken returns the hex SHA-256 digest of a raw token.
func DigestVerificationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Verification implements the single-use email verification token protocol.
type Verification struct {
	store Store
	settings
}

// NewVerification creates the token protocol over store.
func NewVerification(store Store, opts ...Option) (*Verification, error) {
	if store == nil {
		return nil, oops.Code("VERIFICATION_INVALID_CONFIG").Errorf("store is required")
	}
	return &Verification{store: store, settings: newSettings(opts)}, nil
}

func (v *Verification) in(tx Store) *Verification {
	cp := *v
	cp.store = tx
	return &cp
}

// Window is the configured validity window of verification tokens.
func (v *Verification) Window() time.Duration { return v.verificationWindow }

// Issue generates a token for account, replacing any outstanding one, and
// returns the raw token. This is the only time the raw value exists.
func (v *Verification) Issue(ctx context.Context, account *Account) (string, error) {
	token, digest, err := GenerateVerificationToken()
	if err != nil {
		return "", err
	}
	now := v.clock()
	if err := v.store.Accounts().SetVerificationToken(ctx, account.ID, digest, now); err != nil {
		return "", oops.Code("VERIFICATION_ISSUE_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	account.VerificationTokenDigest = &digest
	account.VerificationSentAt = &now
	return token, nil
}

// Validate returns the account holding token if the token is still inside
// window. Every failure is ErrInvalidOrExpiredToken.
func (v *Verification) Validate(ctx context.Context, token string, window time.Duration) (*Account, error) {
	if token == "" {
		return nil, Reject(ErrInvalidOrExpiredToken)
	}
	digest := DigestVerificationToken(token)

	account, err := v.store.Accounts().GetByVerificationDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Reject(ErrInvalidOrExpiredToken)
		}
		return nil, oops.Code("VERIFICATION_VALIDATE_FAILED").
			With("operation", "get account by digest").
			Wrap(err)
	}

	if account.VerificationTokenDigest == nil || account.VerificationSentAt == nil {
		return nil, Reject(ErrInvalidOrExpiredToken)
	}
	if subtle.ConstantTimeCompare([]byte(*account.VerificationTokenDigest), []byte(digest)) != 1 {
		return nil, Reject(ErrInvalidOrExpiredToken)
	}
	if v.clock().Sub(*account.VerificationSentAt) > window {
		return nil, Reject(ErrInvalidOrExpiredToken, "account_id", account.ID.String())
	}
	return account, nil
}

// Verify validates token and consumes it, marking the email verified. When two
// callers present the same token, exactly one succeeds; the other gets
// ErrInvalidOrExpiredToken.
func (v *Verification) Verify(ctx context.Context, token string) (*Account, error) {
	account, err := v.Validate(ctx, token, v.verificationWindow)
	if err != nil {
		VerificationAttempts.WithLabelValues(ResultRejected).Inc()
		return nil, err
	}

	digest := *account.VerificationTokenDigest
	now := v.clock()
	if err := v.store.Accounts().ConsumeVerificationToken(ctx, account.ID, digest, now); err != nil {
		if errors.Is(err, ErrConflict) {
			VerificationAttempts.WithLabelValues(ResultRejected).Inc()
			return nil, Reject(ErrInvalidOrExpiredToken, "account_id", account.ID.String())
		}
		return nil, oops.Code("VERIFICATION_CONSUME_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	account.EmailVerifiedAt = &now
	account.VerificationTokenDigest = nil
	account.VerificationSentAt = nil
	account.UpdatedAt = now

	VerificationAttempts.WithLabelValues(ResultSuccess).Inc()
	v.logger.InfoContext(ctx, "email verified", "account_id", account.ID.String())
	return account, nil
}

// Resend issues a fresh token unless the email is already verified, in which
// case it returns an empty token and sent=false without touching the account.
// account may be stale; the store refuses the write once the stored account
// is verified.
func (v *Verification) Resend(ctx context.Context, account *Account) (token string, sent bool, err error) {
	if account.IsEmailVerified() {
		return "", false, nil
	}
	token, err = v.Issue(ctx, account)
	if errors.Is(err, ErrConflict) {
		v.logger.InfoContext(ctx, "verification resend skipped, email already verified",
			"account_id", account.ID.String())
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}
