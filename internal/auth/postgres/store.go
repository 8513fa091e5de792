// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package postgres implements auth.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/quillworks/quill/internal/auth"
)

// Constraint names from the schema migrations.
const (
	constraintEmail  = "accounts_email_key"
	constraintDigest = "accounts_verification_token_digest_key"
)

// querier runs statements on a pool or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the connection pool the store runs on. *pgxpool.Pool satisfies it.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store implements auth.Store.
type Store struct {
	db DB
	q  querier
	tx bool
}

// Compile-time interface check.
var _ auth.Store = (*Store)(nil)

// NewStore creates a Store over db.
func NewStore(db DB) *Store {
	return &Store{db: db, q: db}
}

// Accounts implements auth.Store.
func (s *Store) Accounts() auth.AccountRepository { return &accountRepo{q: s.q} }

// Sessions implements auth.Store.
func (s *Store) Sessions() auth.SessionRepository { return &sessionRepo{q: s.q} }

// Ping implements auth.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// InTx implements auth.Store. fn's error rolls the transaction back and is
// returned unchanged.
func (s *Store) InTx(ctx context.Context, fn func(tx auth.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return oops.Code("TX_ROLLBACK_FAILED").With("cause", err.Error()).Wrap(rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
