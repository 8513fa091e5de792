// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillworks/quill/internal/auth"
)

const accountColumns = `id, email, password_hash, status, email_verified_at,
	verification_token_digest, verification_sent_at, created_at, updated_at`

type accountRepo struct {
	q querier
}

func (r *accountRepo) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		string(account.Status),
		account.EmailVerifiedAt,
		account.VerificationTokenDigest,
		account.VerificationSentAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintEmail {
			return oops.Code("ACCOUNT_DUPLICATE_EMAIL").With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	return r.get(row, "account_id", id.String())
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return r.get(row, "email", email)
}

func (r *accountRepo) GetByVerificationDigest(ctx context.Context, digest string) (*auth.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE verification_token_digest = $1`, digest)
	return r.get(row, "lookup", "verification digest")
}

func (r *accountRepo) get(row pgx.Row, key, value string) (*auth.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With(key, value).Wrap(err)
	}
	return account, nil
}

func (r *accountRepo) SetVerificationToken(ctx context.Context, id ulid.ULID, digest string, sentAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts
		SET verification_token_digest = $2, verification_sent_at = $3, updated_at = $3
		WHERE id = $1 AND email_verified_at IS NULL
	`, id.String(), digest, sentAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintDigest {
			return oops.Code("ACCOUNT_DUPLICATE_DIGEST").With("account_id", id.String()).Wrap(err)
		}
		return oops.Code("VERIFICATION_SET_FAILED").With("account_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		// A missing account and a verified one are indistinguishable here.
		return oops.Code("VERIFICATION_ALREADY_VERIFIED").With("account_id", id.String()).Wrap(auth.ErrConflict)
	}
	return nil
}

func (r *accountRepo) ConsumeVerificationToken(ctx context.Context, id ulid.ULID, digest string, verifiedAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts
		SET email_verified_at = $3,
		    verification_token_digest = NULL,
		    verification_sent_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND verification_token_digest = $2
	`, id.String(), digest, verifiedAt)
	if err != nil {
		return oops.Code("VERIFICATION_CONSUME_FAILED").With("account_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("VERIFICATION_ALREADY_CONSUMED").With("account_id", id.String()).Wrap(auth.ErrConflict)
	}
	return nil
}

func (r *accountRepo) UpdateStatus(ctx context.Context, id ulid.ULID, from, to auth.Status, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id.String(), string(from), string(to), at)
	if err != nil {
		return oops.Code("ACCOUNT_STATUS_UPDATE_FAILED").
			With("account_id", id.String()).
			With("to", to.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_STATUS_CONFLICT").
			With("account_id", id.String()).
			With("expected", from.String()).
			Wrap(auth.ErrConflict)
	}
	return nil
}

func (r *accountRepo) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id.String(), passwordHash, at)
	if err != nil {
		return oops.Code("PASSWORD_UPDATE_FAILED").With("account_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a                  auth.Account
		id, status         string
		verifiedAt, sentAt pgtype.Timestamptz
		digest             pgtype.Text
	)
	if err := row.Scan(
		&id,
		&a.Email,
		&a.PasswordHash,
		&status,
		&verifiedAt,
		&digest,
		&sentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if a.ID, err = ulid.Parse(id); err != nil {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("id", id).Wrap(err)
	}
	if a.Status, err = auth.ParseStatus(status); err != nil {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("account_id", id).Wrap(err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.EmailVerifiedAt = optionalTime(verifiedAt)
	a.VerificationSentAt = optionalTime(sentAt)
	if digest.Valid {
		d := digest.String
		a.VerificationTokenDigest = &d
	}
	return &a, nil
}

func optionalTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
