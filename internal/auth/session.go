// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ClientMetadata describes the client that opened a session. It is kept for
// audit only and never consulted for access decisions.
type ClientMetadata struct {
	UserAgent string
	IPAddress string
}

// Session is a live authenticated context. Its ID is the opaque identifier
// handed to the client through a signed reference.
type Session struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	UserAgent string
	IPAddress string
	CreatedAt time.Time
}

// NewSession creates a validated Session for accountID.
func NewSession(accountID ulid.ULID, meta ClientMetadata, now time.Time) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	return &Session{
		ID:        ulid.Make(),
		AccountID: accountID,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: now,
	}, nil
}
