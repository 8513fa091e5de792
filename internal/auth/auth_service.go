// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("quill/auth")

// Registration is the input of Register.
type Registration struct {
	Email                string
	Password             string
	PasswordConfirmation string
}

// Service composes the credential store, session registry, token protocols
// and lifecycle state machine into the operations exposed to callers.
// Every operation receives the acting account explicitly.
type Service struct {
	store        Store
	credentials  *Credentials
	registry     *Registry
	verification *Verification
	lifecycle    *Lifecycle
	resets       *PasswordResets
	notifier     Notifier
	links        Links
	settings
}

// NewService creates a new Service.
func NewService(store Store, hasher PasswordHasher, signer TokenSigner, notifier Notifier, links Links, opts ...Option) (*Service, error) {
	if notifier == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("notifier is required")
	}
	if links == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("links are required")
	}

	credentials, err := NewCredentials(store, hasher, opts...)
	if err != nil {
		return nil, err
	}
	registry, err := NewRegistry(store, opts...)
	if err != nil {
		return nil, err
	}
	verification, err := NewVerification(store, opts...)
	if err != nil {
		return nil, err
	}
	lifecycle, err := NewLifecycle(store, signer, opts...)
	if err != nil {
		return nil, err
	}
	resets, err := NewPasswordResets(store, hasher, signer, opts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:        store,
		credentials:  credentials,
		registry:     registry,
		verification: verification,
		lifecycle:    lifecycle,
		resets:       resets,
		notifier:     notifier,
		links:        links,
		settings:     newSettings(opts),
	}, nil
}

// Registry returns the session registry.
func (s *Service) Registry() *Registry { return s.registry }

// Credentials returns the credential store.
func (s *Service) Credentials() *Credentials { return s.credentials }

// Verification returns the email verification token protocol.
func (s *Service) Verification() *Verification { return s.verification }

// Lifecycle returns the account state machine.
func (s *Service) Lifecycle() *Lifecycle { return s.lifecycle }

// PasswordResets returns the password reset flow.
func (s *Service) PasswordResets() *PasswordResets { return s.resets }

// Account loads an account by ID.
func (s *Service) Account(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", id.String()).Wrap(err)
	}
	return account, nil
}

// Register creates an active, unverified account, signs it in and enqueues
// the verification email. Account, session and token are written in one
// transaction; the email is sent only after it commits.
func (s *Service) Register(ctx context.Context, reg Registration, meta ClientMetadata) (*Account, *Session, error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer span.End()

	if err := ValidateEmail(NormalizeEmail(reg.Email)); err != nil {
		return nil, nil, err
	}
	if err := ValidatePassword(reg.Password, reg.PasswordConfirmation); err != nil {
		return nil, nil, err
	}

	var (
		account *Account
		session *Session
		token   string
	)
	err := s.store.InTx(ctx, func(tx Store) error {
		var err error
		if account, err = s.credentials.in(tx).CreateAccount(ctx, reg.Email, reg.Password); err != nil {
			return err
		}
		if session, err = s.registry.in(tx).Create(ctx, account.ID, meta); err != nil {
			return err
		}
		token, err = s.verification.in(tx).Issue(ctx, account)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) || IsValidationError(err) {
			return nil, nil, err
		}
		recordSpanError(span, err)
		return nil, nil, oops.Code("AUTH_REGISTER_FAILED").Wrap(err)
	}

	Registrations.Inc()
	span.SetAttributes(attribute.String("account.id", account.ID.String()))
	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())
	s.notify(ctx, account, KindEmailVerification, s.links.VerifyEmailURL(token))
	return account, session, nil
}

// SignIn authenticates email and password and opens a session. A correct
// password on a non-active account returns the account together with
// ErrAccountNotActive and creates no session.
func (s *Service) SignIn(ctx context.Context, email, password string, meta ClientMetadata) (*Account, *Session, error) {
	ctx, span := tracer.Start(ctx, "auth.SignIn")
	defer span.End()

	account, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			SignIns.WithLabelValues(ResultRejected).Inc()
			return nil, nil, err
		}
		SignIns.WithLabelValues(ResultError).Inc()
		recordSpanError(span, err)
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("account.id", account.ID.String()))

	if !account.CanAuthenticate() {
		SignIns.WithLabelValues(ResultNotActive).Inc()
		s.logger.InfoContext(ctx, "sign in refused for non-active account",
			"account_id", account.ID.String(),
			"status", account.Status.String())
		return account, nil, Reject(ErrAccountNotActive, "account_id", account.ID.String(), "status", account.Status.String())
	}

	session, err := s.registry.Create(ctx, account.ID, meta)
	if err != nil {
		SignIns.WithLabelValues(ResultError).Inc()
		recordSpanError(span, err)
		return nil, nil, err
	}

	SignIns.WithLabelValues(ResultSuccess).Inc()
	return account, session, nil
}

// SignOut destroys one session. Signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, sessionID ulid.ULID) error {
	return s.registry.Destroy(ctx, sessionID)
}

// VerifyEmail redeems an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	ctx, span := tracer.Start(ctx, "auth.VerifyEmail")
	defer span.End()

	account, err := s.verification.Verify(ctx, token)
	if err != nil && !errors.Is(err, ErrInvalidOrExpiredToken) {
		recordSpanError(span, err)
	}
	return account, err
}

// ResendVerification issues a fresh verification token and enqueues the
// email. It does nothing and returns false when the email is already verified.
func (s *Service) ResendVerification(ctx context.Context, account *Account) (bool, error) {
	token, sent, err := s.verification.Resend(ctx, account)
	if err != nil || !sent {
		return false, err
	}
	s.notify(ctx, account, KindEmailVerification, s.links.VerifyEmailURL(token))
	return true, nil
}

// Deactivate deactivates an active account and destroys all of its sessions.
func (s *Service) Deactivate(ctx context.Context, account *Account) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.Deactivate", trace.WithAttributes(attribute.String("account.id", account.ID.String())))
	defer span.End()

	changed, err := s.lifecycle.Deactivate(ctx, account)
	if err != nil {
		recordSpanError(span, err)
	}
	return changed, err
}

// RequestReactivation enqueues a reactivation link when email belongs to a
// deactivated account. The result is the same for every email.
func (s *Service) RequestReactivation(ctx context.Context, email string) error {
	token, account, err := s.lifecycle.RequestReactivation(ctx, email)
	if err != nil {
		return err
	}
	if account != nil {
		s.notify(ctx, account, KindReactivation, s.links.ReactivateURL(token))
	}
	return nil
}

// Reactivate redeems a reactivation link.
func (s *Service) Reactivate(ctx context.Context, token string) (ReactivationOutcome, error) {
	ctx, span := tracer.Start(ctx, "auth.Reactivate")
	defer span.End()

	outcome, _, err := s.lifecycle.Reactivate(ctx, token)
	if err != nil && !errors.Is(err, ErrInvalidOrExpiredToken) {
		recordSpanError(span, err)
	}
	return outcome, err
}

// RequestPasswordReset enqueues a password reset link when email belongs to
// an account. The result is the same for every email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	token, account, err := s.resets.RequestReset(ctx, email)
	if err != nil {
		return err
	}
	if account != nil {
		s.notify(ctx, account, KindPasswordReset, s.links.PasswordResetURL(token))
	}
	return nil
}

// ResetPassword redeems a password reset link.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirmation string) error {
	_, err := s.resets.ResetPassword(ctx, token, password, confirmation)
	return err
}

// Moderate applies an out-of-band transition to the account registered
// under email. Sessions are destroyed with the status write.
func (s *Service) Moderate(ctx context.Context, email string, to Status) (*Account, error) {
	account, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Transition(ctx, account, to); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) notify(ctx context.Context, account *Account, kind, url string) {
	s.notifier.Send(context.WithoutCancel(ctx), account.Email, kind, map[string]string{
		"account_id": account.ID.String(),
		"url":        url,
	})
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
