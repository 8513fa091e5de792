// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package signedref issues tamper-evident, purpose-scoped references such as
// the session cookie value and reactivation links. References are HS256 JWTs
// whose audience is the purpose; they are never stored server side.
package signedref

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretBytes is the shortest accepted signing secret.
const MinSecretBytes = 32

const issuer = "quill"

// ErrInvalid is returned for every verification failure: bad signature,
// wrong purpose, expiry, malformed token. Callers cannot tell them apart.
var ErrInvalid = errors.New("invalid signed reference")

// Claims carried by a reference.
type Claims struct {
	jwt.RegisteredClaims
	Binding string `json:"bnd,omitempty"`
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces time.Now for issue and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// Signer signs and verifies references with one HMAC secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. secret must be at least MinSecretBytes long.
func NewSigner(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) < MinSecretBytes {
		return nil, oops.Code("SIGNEDREF_WEAK_SECRET").
			With("min_bytes", MinSecretBytes).
			Errorf("signing secret must be at least %d bytes", MinSecretBytes)
	}
	s := &Signer{secret: append([]byte(nil), secret...), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign returns a reference to subject scoped to purpose. A zero ttl yields a
// reference without expiry.
func (s *Signer) Sign(purpose, subject, binding string, ttl time.Duration) (string, error) {
	if purpose == "" || subject == "" {
		return "", oops.Code("SIGNEDREF_SIGN_FAILED").Errorf("purpose and subject are required")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			Audience: jwt.ClaimStrings{purpose},
			IssuedAt: jwt.NewNumericDate(now),
			ID:       ulid.Make().String(),
		},
		Binding: binding,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("SIGNEDREF_SIGN_FAILED").With("purpose", purpose).Wrap(err)
	}
	return token, nil
}

// Verify checks token against purpose and returns its subject and binding.
func (s *Signer) Verify(purpose, token string) (subject, binding string, err error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(purpose),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", "", oops.Code("SIGNEDREF_INVALID").With("purpose", purpose).Wrap(ErrInvalid)
	}
	return claims.Subject, claims.Binding, nil
}
