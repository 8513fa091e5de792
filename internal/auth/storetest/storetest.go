// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package storetest is a conformance suite for auth.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) auth.Store

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewAccount builds an unsaved active account for email.
func NewAccount(t *testing.T, email string) *auth.Account {
	t.Helper()
	account, err := auth.NewAccount(email, "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", epoch)
	require.NoError(t, err)
	return account
}

// Run runs every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore) })
	t.Run("verification tokens", func(t *testing.T) { testVerification(t, newStore) })
	t.Run("status compare and swap", func(t *testing.T) { testStatus(t, newStore) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore) })
}

func testAccounts(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	account := NewAccount(t, "a@x.com")
	require.NoError(t, store.Accounts().Create(ctx, account))

	got, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Email, got.Email)
	assert.Equal(t, auth.StatusActive, got.Status)
	assert.Nil(t, got.EmailVerifiedAt)
	assert.True(t, got.CreatedAt.Equal(epoch))

	got, err = store.Accounts().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	err = store.Accounts().Create(ctx, NewAccount(t, "a@x.com"))
	assert.True(t, errors.Is(err, auth.ErrDuplicateEmail), "got %v", err)

	_, err = store.Accounts().GetByEmail(ctx, "missing@x.com")
	assert.True(t, errors.Is(err, auth.ErrNotFound))
	_, err = store.Accounts().GetByID(ctx, ulid.Make())
	assert.True(t, errors.Is(err, auth.ErrNotFound))

	later := epoch.Add(time.Hour)
	require.NoError(t, store.Accounts().UpdatePassword(ctx, account.ID, "new-hash", later))
	got, err = store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.True(t, got.UpdatedAt.Equal(later))

	err = store.Accounts().UpdatePassword(ctx, ulid.Make(), "x", later)
	assert.True(t, errors.Is(err, auth.ErrNotFound))
}

func testVerification(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	a := NewAccount(t, "a@x.com")
	b := NewAccount(t, "b@x.com")
	require.NoError(t, store.Accounts().Create(ctx, a))
	require.NoError(t, store.Accounts().Create(ctx, b))

	require.NoError(t, store.Accounts().SetVerificationToken(ctx, a.ID, "digest-1", epoch))
	got, err := store.Accounts().GetByVerificationDigest(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	require.NotNil(t, got.VerificationSentAt)
	assert.True(t, got.VerificationSentAt.Equal(epoch))

	err = store.Accounts().SetVerificationToken(ctx, b.ID, "digest-1", epoch)
	assert.Error(t, err, "digests are unique across accounts")

	require.NoError(t, store.Accounts().SetVerificationToken(ctx, a.ID, "digest-2", epoch))
	_, err = store.Accounts().GetByVerificationDigest(ctx, "digest-1")
	assert.True(t, errors.Is(err, auth.ErrNotFound), "replaced digest no longer resolves")

	err = store.Accounts().ConsumeVerificationToken(ctx, a.ID, "digest-1", epoch)
	assert.True(t, errors.Is(err, auth.ErrConflict))

	verifiedAt := epoch.Add(time.Minute)
	require.NoError(t, store.Accounts().ConsumeVerificationToken(ctx, a.ID, "digest-2", verifiedAt))
	got, err = store.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EmailVerifiedAt)
	assert.True(t, got.EmailVerifiedAt.Equal(verifiedAt))
	assert.Nil(t, got.VerificationTokenDigest)
	assert.Nil(t, got.VerificationSentAt)

	err = store.Accounts().ConsumeVerificationToken(ctx, a.ID, "digest-2", verifiedAt)
	assert.True(t, errors.Is(err, auth.ErrConflict), "consumed exactly once")

	err = store.Accounts().SetVerificationToken(ctx, a.ID, "digest-3", verifiedAt)
	assert.True(t, errors.Is(err, auth.ErrConflict), "no new token once verified")
	_, err = store.Accounts().GetByVerificationDigest(ctx, "digest-3")
	assert.True(t, errors.Is(err, auth.ErrNotFound))
}

func testStatus(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	account := NewAccount(t, "a@x.com")
	require.NoError(t, store.Accounts().Create(ctx, account))

	require.NoError(t, store.Accounts().UpdateStatus(ctx, account.ID, auth.StatusActive, auth.StatusSuspended, epoch))

	err := store.Accounts().UpdateStatus(ctx, account.ID, auth.StatusActive, auth.StatusDeactivated, epoch)
	assert.True(t, errors.Is(err, auth.ErrConflict))

	got, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusSuspended, got.Status)

	err = store.Accounts().UpdateStatus(ctx, ulid.Make(), auth.StatusActive, auth.StatusBanned, epoch)
	assert.Error(t, err)
}

func testSessions(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	account := NewAccount(t, "a@x.com")
	other := NewAccount(t, "b@x.com")
	require.NoError(t, store.Accounts().Create(ctx, account))
	require.NoError(t, store.Accounts().Create(ctx, other))

	var ids []ulid.ULID
	for i := 0; i < 3; i++ {
		session, err := auth.NewSession(account.ID, auth.ClientMetadata{UserAgent: "agent", IPAddress: "10.0.0.1"}, epoch.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, store.Sessions().Create(ctx, session))
		ids = append(ids, session.ID)
	}
	keep, err := auth.NewSession(other.ID, auth.ClientMetadata{}, epoch)
	require.NoError(t, err)
	require.NoError(t, store.Sessions().Create(ctx, keep))

	orphan, err := auth.NewSession(ulid.Make(), auth.ClientMetadata{}, epoch)
	require.NoError(t, err)
	assert.Error(t, store.Sessions().Create(ctx, orphan), "session needs an existing account")

	got, err := store.Sessions().GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "agent", got.UserAgent)
	assert.Equal(t, "10.0.0.1", got.IPAddress)

	listed, err := store.Sessions().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, session := range listed {
		assert.Equal(t, ids[i], session.ID, "oldest first")
	}

	require.NoError(t, store.Sessions().Delete(ctx, ids[0]))
	assert.True(t, errors.Is(store.Sessions().Delete(ctx, ids[0]), auth.ErrNotFound))
	_, err = store.Sessions().GetByID(ctx, ids[0])
	assert.True(t, errors.Is(err, auth.ErrNotFound))

	n, err := store.Sessions().DeleteByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Sessions().GetByID(ctx, keep.ID)
	assert.NoError(t, err, "other accounts keep their sessions")
}

func testTransactions(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	errBoom := errors.New("boom")

	account := NewAccount(t, "a@x.com")
	err := store.InTx(ctx, func(tx auth.Store) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		session, err := auth.NewSession(account.ID, auth.ClientMetadata{}, epoch)
		if err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, session); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	_, err = store.Accounts().GetByEmail(ctx, "a@x.com")
	assert.True(t, errors.Is(err, auth.ErrNotFound), "rolled back")

	err = store.InTx(ctx, func(tx auth.Store) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		return tx.InTx(ctx, func(inner auth.Store) error {
			return inner.Accounts().UpdateStatus(ctx, account.ID, auth.StatusActive, auth.StatusDeactivated, epoch)
		})
	})
	require.NoError(t, err)
	got, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusDeactivated, got.Status)

	assert.NoError(t, store.Ping(ctx))
}
