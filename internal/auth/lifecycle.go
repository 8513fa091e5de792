// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Purposes of the signed references issued by this package.
const (
	PurposeReactivation  = "reactivation"
	PurposePasswordReset = "password_reset"
)

// TokenSigner issues and checks purpose-scoped, self-expiring signed
// references. They are not stored server side and cannot be revoked before
// they expire.
type TokenSigner interface {
	// Sign returns a reference to subject valid for ttl. binding is an
	// optional value the verifier can compare against current state.
	Sign(purpose, subject, binding string, ttl time.Duration) (string, error)

	// Verify checks signature, purpose and expiry and returns the subject and
	// binding.
	Verify(purpose, token string) (subject, binding string, err error)
}

// transitions is the lifecycle table. Every edge not listed is rejected.
var transitions = map[Status][]Status{
	StatusActive:      {StatusDeactivated, StatusSuspended, StatusBanned, StatusAnonymised},
	StatusDeactivated: {StatusActive, StatusSuspended, StatusBanned, StatusAnonymised},
	StatusSuspended:   {StatusActive, StatusBanned, StatusAnonymised},
	StatusBanned:      {StatusAnonymised},
	StatusAnonymised:  nil,
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReactivationOutcome is the successful result of Reactivate.
type ReactivationOutcome int

// Reactivation outcomes.
const (
	Reactivated ReactivationOutcome = iota + 1
	AlreadyActive
)

func (o ReactivationOutcome) String() string {
	switch o {
	case Reactivated:
		return "reactivated"
	case AlreadyActive:
		return "already_active"
	default:
		return "unknown"
	}
}

// Lifecycle is the account status state machine. Every applied transition
// writes the new status and destroys all sessions of the account in one
// transaction, guarded by a compare-and-swap on the previous status.
type Lifecycle struct {
	store  Store
	signer TokenSigner
	settings
}

// NewLifecycle creates the state machine. signer issues reactivation links.
func NewLifecycle(store Store, signer TokenSigner, opts ...Option) (*Lifecycle, error) {
	if store == nil {
		return nil, oops.Code("LIFECYCLE_INVALID_CONFIG").Errorf("store is required")
	}
	if signer == nil {
		return nil, oops.Code("LIFECYCLE_INVALID_CONFIG").Errorf("token signer is required")
	}
	return &Lifecycle{store: store, signer: signer, settings: newSettings(opts)}, nil
}

// Transition moves account to status to and destroys every session of the
// account. account is updated in place on success.
func (l *Lifecycle) Transition(ctx context.Context, account *Account, to Status) error {
	from := account.Status
	if !CanTransition(from, to) {
		return Reject(ErrInvalidTransition, "account_id", account.ID.String(), "from", from.String(), "to", to.String())
	}

	now := l.clock()
	var destroyed int64
	err := l.store.InTx(ctx, func(tx Store) error {
		if err := tx.Accounts().UpdateStatus(ctx, account.ID, from, to, now); err != nil {
			return err
		}
		n, err := tx.Sessions().DeleteByAccount(ctx, account.ID)
		destroyed = n
		return err
	})
	if err != nil {
		return oops.Code("LIFECYCLE_TRANSITION_FAILED").
			With("account_id", account.ID.String()).
			With("from", from.String()).
			With("to", to.String()).
			Wrap(err)
	}

	account.Status = to
	account.UpdatedAt = now

	StatusTransitions.WithLabelValues(from.String(), to.String()).Inc()
	if destroyed > 0 {
		SessionsDestroyed.Add(float64(destroyed))
	}
	l.logger.InfoContext(ctx, "account status changed",
		"account_id", account.ID.String(),
		"from", from.String(),
		"to", to.String(),
		"sessions_destroyed", destroyed)
	return nil
}

// Deactivate is the self-serve active to deactivated transition. For an
// account that is not active it does nothing and returns false.
func (l *Lifecycle) Deactivate(ctx context.Context, account *Account) (bool, error) {
	switch account.Status {
	case StatusActive:
	case StatusDeactivated, StatusSuspended, StatusBanned, StatusAnonymised:
		l.logger.InfoContext(ctx, "deactivate ignored for non-active account",
			"account_id", account.ID.String(),
			"status", account.Status.String())
		return false, nil
	default:
		return false, oops.Code("AUTH_UNKNOWN_STATUS").With("status", account.Status.String()).Errorf("unknown account status")
	}

	if err := l.Transition(ctx, account, StatusDeactivated); err != nil {
		if errors.Is(err, ErrConflict) {
			// Status changed concurrently; the account is no longer active.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReactivationToken returns a signed reactivation link token for account.
func (l *Lifecycle) ReactivationToken(account *Account) (string, error) {
	token, err := l.signer.Sign(PurposeReactivation, account.ID.String(), "", l.reactivationTTL)
	if err != nil {
		return "", oops.Code("REACTIVATION_TOKEN_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// RequestReactivation returns a reactivation token when email belongs to a
// deactivated account. Otherwise it returns an empty token and a nil account
// with no error, so callers respond identically in every case.
func (l *Lifecycle) RequestReactivation(ctx context.Context, email string) (string, *Account, error) {
	account, err := l.store.Accounts().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, oops.Code("REACTIVATION_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	if account.Status != StatusDeactivated {
		return "", nil, nil
	}
	token, err := l.ReactivationToken(account)
	if err != nil {
		return "", nil, err
	}
	return token, account, nil
}

// reactivationRace settles a reactivation whose status write lost a
// compare-and-swap. A concurrent redemption of the same link leaves the
// account active, which is reported as AlreadyActive.
func (l *Lifecycle) reactivationRace(ctx context.Context, id ulid.ULID) (ReactivationOutcome, *Account, error) {
	current, err := l.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil, Reject(ErrInvalidOrExpiredToken, "account_id", id.String())
		}
		return 0, nil, oops.Code("REACTIVATION_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}
	if current.Status == StatusActive {
		return AlreadyActive, current, nil
	}
	return 0, nil, Reject(ErrInvalidOrExpiredToken, "account_id", id.String())
}

// Reactivate redeems a reactivation token. A deactivated account becomes
// active with no sessions; an active account reports AlreadyActive. Any
// other status, and every token failure, is ErrInvalidOrExpiredToken.
func (l *Lifecycle) Reactivate(ctx context.Context, token string) (ReactivationOutcome, *Account, error) {
	subject, _, err := l.signer.Verify(PurposeReactivation, token)
	if err != nil {
		return 0, nil, Reject(ErrInvalidOrExpiredToken)
	}
	id, err := ulid.Parse(subject)
	if err != nil {
		return 0, nil, Reject(ErrInvalidOrExpiredToken)
	}

	account, err := l.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil, Reject(ErrInvalidOrExpiredToken)
		}
		return 0, nil, oops.Code("REACTIVATION_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}

	switch account.Status {
	case StatusActive:
		return AlreadyActive, account, nil
	case StatusDeactivated:
		if err := l.Transition(ctx, account, StatusActive); err != nil {
			if errors.Is(err, ErrConflict) {
				return l.reactivationRace(ctx, id)
			}
			return 0, nil, err
		}
		return Reactivated, account, nil
	case StatusSuspended, StatusBanned, StatusAnonymised:
		return 0, nil, Reject(ErrInvalidOrExpiredToken, "account_id", id.String())
	default:
		return 0, nil, Reject(ErrInvalidOrExpiredToken, "account_id", id.String())
	}
}
