// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package access is the per-request access gate. It evaluates an ordered
// pipeline over the caller's session reference:
//
//  1. authentication: the session resolves to an account
//  2. active account: the account status is active; otherwise the session is
//     destroyed on the spot and the caller must drop its reference
//  3. capability: for requirements that need it, the email is verified; the
//     session is kept when this fails
//
// A Decision carries the resolved Principal, which handlers receive
// explicitly. There is no ambient current user.
package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quillworks/quill/internal/auth"
)

var tracer = otel.Tracer("quill/access")

// Requirement names the capability a route needs.
type Requirement int

// Requirements, from weakest to strongest.
const (
	RequireActive   Requirement = iota // signed in with an active account
	RequireVerified                    // additionally, a verified email
)

var requirementStrings = [...]string{"active", "verified"}

func (r Requirement) String() string {
	if int(r) < len(requirementStrings) && r >= 0 {
		return requirementStrings[r]
	}
	return "unknown"
}

// Denial is the reason a request was refused.
type Denial int

// Denials. DenialNone means the request is allowed.
const (
	DenialNone Denial = iota
	DenialUnauthenticated
	DenialAccountNotActive
	DenialEmailNotVerified
)

var denialStrings = [...]string{"none", "unauthenticated", "account_not_active", "email_not_verified"}

func (d Denial) String() string {
	if int(d) < len(denialStrings) && d >= 0 {
		return denialStrings[d]
	}
	return "unknown"
}

// Principal is the resolved caller.
type Principal struct {
	Account *auth.Account
	Session *auth.Session
}

// Decision is the outcome of one evaluation.
type Decision struct {
	allowed bool

	// Denial is DenialNone when allowed.
	Denial Denial

	// Principal is set whenever the session resolved, even on denial.
	Principal Principal

	// ClearSession tells the transport to drop the caller's session
	// reference because it no longer identifies a usable session.
	ClearSession bool
}

// IsAllowed returns whether the decision grants access.
func (d Decision) IsAllowed() bool { return d.allowed }

// Err returns the coded auth error for a denial, or nil when allowed.
func (d Decision) Err() error {
	switch d.Denial {
	case DenialNone:
		return nil
	case DenialUnauthenticated:
		return auth.Reject(auth.ErrUnauthenticated)
	case DenialAccountNotActive:
		return auth.Reject(auth.ErrAccountNotActive)
	case DenialEmailNotVerified:
		return auth.Reject(auth.ErrEmailNotVerified)
	default:
		return auth.Reject(auth.ErrUnauthenticated)
	}
}

func allow(p Principal) Decision { return Decision{allowed: true, Principal: p} }

func deny(denial Denial, p Principal, clear bool) Decision {
	return Decision{Denial: denial, Principal: p, ClearSession: clear}
}

// SessionRegistry is the part of the session registry the gate needs.
type SessionRegistry interface {
	Resolve(ctx context.Context, id ulid.ULID) (*auth.Session, error)
	Destroy(ctx context.Context, id ulid.ULID) error
}

// AccountSource loads accounts by ID.
type AccountSource interface {
	Account(ctx context.Context, id ulid.ULID) (*auth.Account, error)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used for forced logouts.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate evaluates requests against session, lifecycle and capability state.
// It trusts the registry lookup for validity, never the transport signature alone.
type Gate struct {
	sessions SessionRegistry
	accounts AccountSource
	logger   *slog.Logger
}

// NewGate creates a Gate.
func NewGate(sessions SessionRegistry, accounts AccountSource, opts ...GateOption) (*Gate, error) {
	if sessions == nil {
		return nil, oops.Code("GATE_INVALID_CONFIG").Errorf("session registry is required")
	}
	if accounts == nil {
		return nil, oops.Code("GATE_INVALID_CONFIG").Errorf("account source is required")
	}
	g := &Gate{sessions: sessions, accounts: accounts, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Evaluate runs the pipeline for the session identified by sessionID. A zero
// sessionID means the caller presented no valid reference. The error is
// non-nil only for storage failures; every expected outcome is a Decision.
func (g *Gate) Evaluate(ctx context.Context, sessionID ulid.ULID, req Requirement) (Decision, error) {
	ctx, span := tracer.Start(ctx, "access.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("access.requirement", req.String()))

	decision, err := g.evaluate(ctx, sessionID, req)
	if err != nil {
		span.RecordError(err)
		Decisions.WithLabelValues(req.String(), "error").Inc()
		return Decision{}, err
	}
	span.SetAttributes(attribute.String("access.denial", decision.Denial.String()))
	Decisions.WithLabelValues(req.String(), decision.Denial.String()).Inc()
	return decision, nil
}

func (g *Gate) evaluate(ctx context.Context, sessionID ulid.ULID, req Requirement) (Decision, error) {
	// 1. Authentication.
	if sessionID.Compare(ulid.ULID{}) == 0 {
		return deny(DenialUnauthenticated, Principal{}, false), nil
	}
	session, err := g.sessions.Resolve(ctx, sessionID)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return deny(DenialUnauthenticated, Principal{}, true), nil
		}
		return Decision{}, oops.Code("GATE_EVALUATE_FAILED").With("operation", "resolve session").Wrap(err)
	}
	account, err := g.accounts.Account(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			if err := g.forceLogout(ctx, session, "account missing"); err != nil {
				return Decision{}, err
			}
			return deny(DenialUnauthenticated, Principal{}, true), nil
		}
		return Decision{}, oops.Code("GATE_EVALUATE_FAILED").With("operation", "load account").Wrap(err)
	}
	principal := Principal{Account: account, Session: session}

	// 2. Active account.
	switch account.Status {
	case auth.StatusActive:
	case auth.StatusDeactivated, auth.StatusSuspended, auth.StatusBanned, auth.StatusAnonymised:
		if err := g.forceLogout(ctx, session, account.Status.String()); err != nil {
			return Decision{}, err
		}
		return deny(DenialAccountNotActive, principal, true), nil
	default:
		if err := g.forceLogout(ctx, session, "unknown status"); err != nil {
			return Decision{}, err
		}
		return deny(DenialAccountNotActive, principal, true), nil
	}

	// 3. Capability.
	switch req {
	case RequireActive:
	case RequireVerified:
		if !account.IsEmailVerified() {
			return deny(DenialEmailNotVerified, principal, false), nil
		}
	default:
		return Decision{}, oops.Code("GATE_UNKNOWN_REQUIREMENT").With("requirement", int(req)).Errorf("unknown requirement")
	}

	return allow(principal), nil
}

func (g *Gate) forceLogout(ctx context.Context, session *auth.Session, reason string) error {
	if err := g.sessions.Destroy(ctx, session.ID); err != nil {
		return oops.Code("GATE_FORCE_LOGOUT_FAILED").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	ForcedLogouts.Inc()
	g.logger.WarnContext(ctx, "forced logout",
		"account_id", session.AccountID.String(),
		"session_id", session.ID.String(),
		"reason", reason)
	return nil
}
