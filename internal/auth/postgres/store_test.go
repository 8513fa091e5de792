// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/auth/postgres"
	"github.com/quillworks/quill/pkg/errutil"
)

var accountCols = []string{
	"id", "email", "password_hash", "status", "email_verified_at",
	"verification_token_digest", "verification_sent_at", "created_at", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock, postgres.NewStore(mock)
}

func testAccount(t *testing.T) *auth.Account {
	t.Helper()
	a, err := auth.NewAccount("a@x.com", "hash", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return a
}

func TestAccounts_Create(t *testing.T) {
	ctx := context.Background()
	account := testAccount(t)

	tests := []struct {
		name     string
		execErr  error
		wantCode string
		wantIs   error
	}{
		{name: "success"},
		{
			name:     "duplicate email",
			execErr:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_email_key"},
			wantCode: "ACCOUNT_DUPLICATE_EMAIL",
			wantIs:   auth.ErrDuplicateEmail,
		},
		{
			name:     "other unique violation",
			execErr:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_pkey"},
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
		{
			name:     "connection failure",
			execErr:  errors.New("connection refused"),
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, store := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO accounts`).
				WithArgs(account.ID.String(), "a@x.com", "hash", "active",
					pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), account.CreatedAt, account.UpdatedAt)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := store.Accounts().Create(ctx, account)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantIs != nil {
				assert.True(t, errors.Is(err, tt.wantIs))
			}
		})
	}
}

func TestAccounts_GetByID(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("scans nullable columns", func(t *testing.T) {
		mock, store := newMock(t)
		verified := created.Add(time.Hour)
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(accountCols).
				AddRow(id.String(), "a@x.com", "hash", "suspended", verified, nil, nil, created, created))

		got, err := store.Accounts().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, auth.StatusSuspended, got.Status)
		require.NotNil(t, got.EmailVerifiedAt)
		assert.True(t, got.EmailVerifiedAt.Equal(verified))
		assert.Nil(t, got.VerificationTokenDigest)
		assert.Nil(t, got.VerificationSentAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(accountCols))

		_, err := store.Accounts().GetByID(ctx, id)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
	})

	t.Run("unknown status in row", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(accountCols).
				AddRow(id.String(), "a@x.com", "hash", "frozen", nil, nil, nil, created, created))

		_, err := store.Accounts().GetByID(ctx, id)
		require.Error(t, err)
		assert.False(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestAccounts_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("status conflict", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE accounts SET status`).
			WithArgs(id.String(), "active", "deactivated", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.Accounts().UpdateStatus(ctx, id, auth.StatusActive, auth.StatusDeactivated, at)
		assert.True(t, errors.Is(err, auth.ErrConflict))
		errutil.AssertErrorCode(t, err, "ACCOUNT_STATUS_CONFLICT")
	})

	t.Run("status applied", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE accounts SET status`).
			WithArgs(id.String(), "active", "banned", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, store.Accounts().UpdateStatus(ctx, id, auth.StatusActive, auth.StatusBanned, at))
	})

	t.Run("verification already consumed", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE accounts\s+SET email_verified_at`).
			WithArgs(id.String(), "digest", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.Accounts().ConsumeVerificationToken(ctx, id, "digest", at)
		assert.True(t, errors.Is(err, auth.ErrConflict))
	})

	t.Run("duplicate digest", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE accounts\s+SET verification_token_digest`).
			WithArgs(id.String(), "digest", at).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_verification_token_digest_key"})

		err := store.Accounts().SetVerificationToken(ctx, id, "digest", at)
		errutil.AssertErrorCode(t, err, "ACCOUNT_DUPLICATE_DIGEST")
	})

	t.Run("token for verified account", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`(?s)UPDATE accounts\s+SET verification_token_digest = \$2.*WHERE id = \$1 AND email_verified_at IS NULL`).
			WithArgs(id.String(), "digest", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.Accounts().SetVerificationToken(ctx, id, "digest", at)
		assert.True(t, errors.Is(err, auth.ErrConflict))
		errutil.AssertErrorCode(t, err, "VERIFICATION_ALREADY_VERIFIED")
	})

	t.Run("password for missing account", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE accounts SET password_hash`).
			WithArgs(id.String(), "new", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.Accounts().UpdatePassword(ctx, id, "new", at)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	accountID := ulid.Make()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create for unknown account", func(t *testing.T) {
		mock, store := newMock(t)
		session, err := auth.NewSession(accountID, auth.ClientMetadata{}, created)
		require.NoError(t, err)
		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(session.ID.String(), accountID.String(), "", "", created).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})

		err = store.Sessions().Create(ctx, session)
		errutil.AssertErrorCode(t, err, "SESSION_UNKNOWN_ACCOUNT")
	})

	t.Run("list oldest first", func(t *testing.T) {
		mock, store := newMock(t)
		first, second := ulid.Make(), ulid.Make()
		mock.ExpectQuery(`SELECT .+ FROM sessions WHERE account_id = \$1\s+ORDER BY id`).
			WithArgs(accountID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "user_agent", "ip_address", "created_at"}).
				AddRow(first.String(), accountID.String(), "ua", "10.0.0.1", created).
				AddRow(second.String(), accountID.String(), "ua", "10.0.0.2", created))

		sessions, err := store.Sessions().ListByAccount(ctx, accountID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, first, sessions[0].ID)
		assert.Equal(t, "10.0.0.2", sessions[1].IPAddress)
	})

	t.Run("delete missing", func(t *testing.T) {
		mock, store := newMock(t)
		id := ulid.Make()
		mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := store.Sessions().Delete(ctx, id)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})

	t.Run("delete by account counts rows", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE account_id = \$1`).
			WithArgs(accountID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := store.Sessions().DeleteByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestStore_InTx(t *testing.T) {
	ctx := context.Background()
	accountID := ulid.Make()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("commits on success", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE accounts SET status`).
			WithArgs(accountID.String(), "active", "suspended", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`DELETE FROM sessions WHERE account_id`).
			WithArgs(accountID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectCommit()

		err := store.InTx(ctx, func(tx auth.Store) error {
			if err := tx.Accounts().UpdateStatus(ctx, accountID, auth.StatusActive, auth.StatusSuspended, at); err != nil {
				return err
			}
			_, err := tx.Sessions().DeleteByAccount(ctx, accountID)
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("rolls back and returns the callback error", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE accounts SET status`).
			WithArgs(accountID.String(), "active", "suspended", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := store.InTx(ctx, func(tx auth.Store) error {
			return tx.Accounts().UpdateStatus(ctx, accountID, auth.StatusActive, auth.StatusSuspended, at)
		})
		assert.True(t, errors.Is(err, auth.ErrConflict))
	})

	t.Run("nested call joins the transaction", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := store.InTx(ctx, func(tx auth.Store) error {
			return tx.InTx(ctx, func(auth.Store) error {
				calls++
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("begin failure", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		err := store.InTx(ctx, func(auth.Store) error { return nil })
		errutil.AssertErrorCode(t, err, "TX_BEGIN_FAILED")
	})
}

func TestStore_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	err = postgres.NewStore(mock).Ping(context.Background())
	errutil.AssertErrorCode(t, err, "DB_PING_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet())
}
