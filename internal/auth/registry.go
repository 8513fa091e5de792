// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Registry tracks live sessions per account.
//
// Resolution never extends a session; there is no sliding expiry.
type Registry struct {
	store Store
	settings
}

// NewRegistry creates a session Registry over store.
func NewRegistry(store Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, oops.Code("REGISTRY_INVALID_CONFIG").Errorf("store is required")
	}
	return &Registry{store: store, settings: newSettings(opts)}, nil
}

func (r *Registry) in(tx Store) *Registry {
	cp := *r
	cp.store = tx
	return &cp
}

// Create opens a new session for accountID.
func (r *Registry) Create(ctx context.Context, accountID ulid.ULID, meta ClientMetadata) (*Session, error) {
	session, err := NewSession(accountID, meta, r.clock())
	if err != nil {
		return nil, err
	}
	if err := r.store.Sessions().Create(ctx, session); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return session, nil
}

// Resolve looks up a session by identifier. An unknown identifier is
// ErrUnauthenticated.
func (r *Registry) Resolve(ctx context.Context, id ulid.ULID) (*Session, error) {
	if id.Compare(ulid.ULID{}) == 0 {
		return nil, Reject(ErrUnauthenticated)
	}
	session, err := r.store.Sessions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Reject(ErrUnauthenticated, "session_id", id.String())
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("session_id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// Destroy removes one session. Destroying an unknown session is not an error.
func (r *Registry) Destroy(ctx context.Context, id ulid.ULID) error {
	err := r.store.Sessions().Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("session_id", id.String()).
			Wrap(err)
	}
	return nil
}

// DestroyAll removes every session of accountID and returns how many existed.
func (r *Registry) DestroyAll(ctx context.Context, accountID ulid.ULID) (int64, error) {
	n, err := r.store.Sessions().DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, oops.Code("SESSION_DESTROY_ALL_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	if n > 0 {
		SessionsDestroyed.Add(float64(n))
	}
	return n, nil
}

// List returns the live sessions of accountID.
func (r *Registry) List(ctx context.Context, accountID ulid.ULID) ([]*Session, error) {
	sessions, err := r.store.Sessions().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return sessions, nil
}
