// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/pkg/errutil"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@x.com", auth.NormalizeEmail("  User@X.com "))
	assert.Equal(t, auth.NormalizeEmail("User@x.com"), auth.NormalizeEmail(" user@x.com "))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"a@x.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"no-at-sign", false},
		{"a@localhost", false},
		{"Ann <a@x.com>", false},
		{"@x.com", false},
		{"a@x.com extra", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrInvalidEmail))
			errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name         string
		password     string
		confirmation string
		want         error
	}{
		{name: "valid", password: "secret", confirmation: "secret"},
		{name: "empty", password: "", confirmation: "", want: auth.ErrEmptyPassword},
		{name: "too long", password: strings.Repeat("a", auth.MaxPasswordBytes+1), confirmation: strings.Repeat("a", auth.MaxPasswordBytes+1), want: auth.ErrPasswordTooLong},
		{name: "exactly max", password: strings.Repeat("a", auth.MaxPasswordBytes), confirmation: strings.Repeat("a", auth.MaxPasswordBytes)},
		{name: "mismatch", password: "secret", confirmation: "secreT", want: auth.ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password, tt.confirmation)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want))
			assert.True(t, auth.IsValidationError(err))
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range auth.Statuses {
		got, err := auth.ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := auth.ParseStatus("frozen")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_UNKNOWN_STATUS")
}

func TestAccount_CanAuthenticate(t *testing.T) {
	want := map[auth.Status]bool{
		auth.StatusActive:      true,
		auth.StatusDeactivated: false,
		auth.StatusSuspended:   false,
		auth.StatusBanned:      false,
		auth.StatusAnonymised:  false,
		auth.Status("bogus"):   false,
	}
	for status, ok := range want {
		account := &auth.Account{Status: status}
		assert.Equal(t, ok, account.CanAuthenticate(), status.String())
	}
}

func TestNewAccount(t *testing.T) {
	now := time.Now()

	t.Run("starts active and unverified", func(t *testing.T) {
		account, err := auth.NewAccount(" A@X.com", "hash", now)
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, account.ID)
		assert.Equal(t, "a@x.com", account.Email)
		assert.Equal(t, auth.StatusActive, account.Status)
		assert.False(t, account.IsEmailVerified())
		assert.False(t, account.HasPendingVerification())
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := auth.NewAccount("a@x.com", "", now)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_HASH")
	})

	t.Run("rejects bad email", func(t *testing.T) {
		_, err := auth.NewAccount("nope", "hash", now)
		assert.True(t, errors.Is(err, auth.ErrInvalidEmail))
	})
}

func TestNewSession(t *testing.T) {
	_, err := auth.NewSession(ulid.ULID{}, auth.ClientMetadata{}, time.Now())
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_ACCOUNT")

	accountID := ulid.Make()
	session, err := auth.NewSession(accountID, auth.ClientMetadata{UserAgent: "ua", IPAddress: "10.0.0.1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, accountID, session.AccountID)
	assert.Equal(t, "ua", session.UserAgent)
	assert.Equal(t, "10.0.0.1", session.IPAddress)
}
