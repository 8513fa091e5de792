// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillworks/quill/internal/auth"
)

type sessionRepo struct {
	q querier
}

func (r *sessionRepo) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO sessions (id, account_id, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		session.ID.String(),
		session.AccountID.String(),
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
	)
	if err != nil {
		if foreignKeyViolation(err) {
			return oops.Code("SESSION_UNKNOWN_ACCOUNT").With("account_id", session.AccountID.String()).Wrap(err)
		}
		return oops.Code("SESSION_CREATE_FAILED").With("session_id", session.ID.String()).Wrap(err)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, account_id, user_agent, ip_address, created_at
		FROM sessions WHERE id = $1
	`, id.String())
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("session_id", id.String()).Wrap(err)
	}
	return session, nil
}

func (r *sessionRepo) ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*auth.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, account_id, user_agent, ip_address, created_at
		FROM sessions WHERE account_id = $1
		ORDER BY id
	`, accountID.String())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_LIST_FAILED").
				With("operation", "scan session").
				With("account_id", accountID.String()).
				Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return sessions, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *sessionRepo) DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		s                 auth.Session
		id, accountIDText string
	)
	if err := row.Scan(&id, &accountIDText, &s.UserAgent, &s.IPAddress, &s.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.ID, err = ulid.Parse(id); err != nil {
		return nil, oops.Code("SESSION_SCAN_FAILED").With("id", id).Wrap(err)
	}
	if s.AccountID, err = ulid.Parse(accountIDText); err != nil {
		return nil, oops.Code("SESSION_SCAN_FAILED").With("account_id", accountIDText).Wrap(err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
