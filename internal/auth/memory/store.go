// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package memory provides an in-process auth.Store for development and tests.
// Transactions hold the store's write lock for their whole duration, so they
// are serialized and other readers never observe a partial write.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quillworks/quill/internal/auth"
)

type state struct {
	accounts map[ulid.ULID]*auth.Account
	byEmail  map[string]ulid.ULID
	byDigest map[string]ulid.ULID
	sessions map[ulid.ULID]*auth.Session
}

func newState() *state {
	return &state{
		accounts: make(map[ulid.ULID]*auth.Account),
		byEmail:  make(map[string]ulid.ULID),
		byDigest: make(map[string]ulid.ULID),
		sessions: make(map[ulid.ULID]*auth.Session),
	}
}

func (st *state) clone() *state {
	cp := newState()
	for id, a := range st.accounts {
		cp.accounts[id] = cloneAccount(a)
	}
	for k, v := range st.byEmail {
		cp.byEmail[k] = v
	}
	for k, v := range st.byDigest {
		cp.byDigest[k] = v
	}
	for id, s := range st.sessions {
		session := *s
		cp.sessions[id] = &session
	}
	return cp
}

// Store is a mutex-guarded auth.Store.
type Store struct {
	mu   *sync.RWMutex
	data *state
	inTx bool
}

// Compile-time interface check.
var _ auth.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{mu: &sync.RWMutex{}, data: newState()}
}

// Accounts implements auth.Store.
func (s *Store) Accounts() auth.AccountRepository { return &accountRepo{s: s} }

// Sessions implements auth.Store.
func (s *Store) Sessions() auth.SessionRepository { return &sessionRepo{s: s} }

// Ping implements auth.Store.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// InTx implements auth.Store. A failed fn restores the state from before it ran.
func (s *Store) InTx(ctx context.Context, fn func(tx auth.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func (s *Store) read(fn func(st *state)) {
	if !s.inTx {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	fn(s.data)
}

func (s *Store) write(fn func(st *state)) {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn(s.data)
}

func cloneAccount(a *auth.Account) *auth.Account {
	cp := *a
	if a.EmailVerifiedAt != nil {
		t := *a.EmailVerifiedAt
		cp.EmailVerifiedAt = &t
	}
	if a.VerificationTokenDigest != nil {
		d := *a.VerificationTokenDigest
		cp.VerificationTokenDigest = &d
	}
	if a.VerificationSentAt != nil {
		t := *a.VerificationSentAt
		cp.VerificationSentAt = &t
	}
	return &cp
}

type accountRepo struct{ s *Store }

func (r *accountRepo) Create(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		if _, taken := st.byEmail[account.Email]; taken {
			err = oops.Code("ACCOUNT_DUPLICATE_EMAIL").With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
			return
		}
		if _, taken := st.accounts[account.ID]; taken {
			err = oops.Code("ACCOUNT_DUPLICATE_ID").With("account_id", account.ID.String()).Errorf("account ID already exists")
			return
		}
		if account.VerificationTokenDigest != nil {
			if _, taken := st.byDigest[*account.VerificationTokenDigest]; taken {
				err = oops.Code("ACCOUNT_DUPLICATE_DIGEST").Errorf("verification digest already exists")
				return
			}
			st.byDigest[*account.VerificationTokenDigest] = account.ID
		}
		st.accounts[account.ID] = cloneAccount(account)
		st.byEmail[account.Email] = account.ID
	})
	return err
}

func (r *accountRepo) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *auth.Account
	r.s.read(func(st *state) {
		if a, ok := st.accounts[id]; ok {
			out = cloneAccount(a)
		}
	})
	if out == nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return out, nil
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *auth.Account
	r.s.read(func(st *state) {
		if id, ok := st.byEmail[email]; ok {
			out = cloneAccount(st.accounts[id])
		}
	})
	if out == nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return out, nil
}

func (r *accountRepo) GetByVerificationDigest(ctx context.Context, digest string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *auth.Account
	r.s.read(func(st *state) {
		if id, ok := st.byDigest[digest]; ok {
			out = cloneAccount(st.accounts[id])
		}
	})
	if out == nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return out, nil
}

func (r *accountRepo) SetVerificationToken(ctx context.Context, id ulid.ULID, digest string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		a, ok := st.accounts[id]
		if !ok {
			err = oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id.String()).Wrap(auth.ErrNotFound)
			return
		}
		if a.EmailVerifiedAt != nil {
			err = oops.Code("VERIFICATION_ALREADY_VERIFIED").With("account_id", id.String()).Wrap(auth.ErrConflict)
			return
		}
		if owner, taken := st.byDigest[digest]; taken && owner != id {
			err = oops.Code("ACCOUNT_DUPLICATE_DIGEST").Errorf("verification digest already exists")
			return
		}
		if a.VerificationTokenDigest != nil {
			delete(st.byDigest, *a.VerificationTokenDigest)
		}
		d, t := digest, sentAt
		a.VerificationTokenDigest = &d
		a.VerificationSentAt = &t
		a.UpdatedAt = sentAt
		st.byDigest[digest] = id
	})
	return err
}

func (r *accountRepo) ConsumeVerificationToken(ctx context.Context, id ulid.ULID, digest string, verifiedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		a, ok := st.accounts[id]
		if !ok || a.VerificationTokenDigest == nil || *a.VerificationTokenDigest != digest {
			err = oops.Code("VERIFICATION_ALREADY_CONSUMED").With("account_id", id.String()).Wrap(auth.ErrConflict)
			return
		}
		delete(st.byDigest, digest)
		t := verifiedAt
		a.EmailVerifiedAt = &t
		a.VerificationTokenDigest = nil
		a.VerificationSentAt = nil
		a.UpdatedAt = verifiedAt
	})
	return err
}

func (r *accountRepo) UpdateStatus(ctx context.Context, id ulid.ULID, from, to auth.Status, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		a, ok := st.accounts[id]
		if !ok {
			err = oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id.String()).Wrap(auth.ErrNotFound)
			return
		}
		if a.Status != from {
			err = oops.Code("ACCOUNT_STATUS_CONFLICT").
				With("account_id", id.String()).
				With("expected", from.String()).
				With("actual", a.Status.String()).
				Wrap(auth.ErrConflict)
			return
		}
		a.Status = to
		a.UpdatedAt = at
	})
	return err
}

func (r *accountRepo) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		a, ok := st.accounts[id]
		if !ok {
			err = oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id.String()).Wrap(auth.ErrNotFound)
			return
		}
		a.PasswordHash = passwordHash
		a.UpdatedAt = at
	})
	return err
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(ctx context.Context, session *auth.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		if _, ok := st.accounts[session.AccountID]; !ok {
			err = oops.Code("SESSION_UNKNOWN_ACCOUNT").With("account_id", session.AccountID.String()).Errorf("account does not exist")
			return
		}
		cp := *session
		st.sessions[session.ID] = &cp
	})
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *auth.Session
	r.s.read(func(st *state) {
		if session, ok := st.sessions[id]; ok {
			cp := *session
			out = &cp
		}
	})
	if out == nil {
		return nil, oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return out, nil
}

func (r *sessionRepo) ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*auth.Session
	r.s.read(func(st *state) {
		for _, session := range st.sessions {
			if session.AccountID == accountID {
				cp := *session
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id ulid.ULID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var found bool
	r.s.write(func(st *state) {
		_, found = st.sessions[id]
		delete(st.sessions, id)
	})
	if !found {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *sessionRepo) DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	r.s.write(func(st *state) {
		for id, session := range st.sessions {
			if session.AccountID == accountID {
				delete(st.sessions, id)
				n++
			}
		}
	})
	return n, nil
}
