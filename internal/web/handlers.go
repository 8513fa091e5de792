// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillworks/quill/internal/access"
	"github.com/quillworks/quill/internal/auth"
)

// Form fields.
const (
	fieldEmail        = "email"
	fieldPassword     = "password"
	fieldConfirmation = "password_confirmation"
)

func (s *Server) handleUp(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Page{"status": "ok"})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	decision, ok, err := s.signedIn(w, r)
	if err != nil {
		s.fail(w, r, "home", err)
		return
	}
	page := Page{"signed_in": ok}
	if ok {
		page["email"] = decision.Principal.Account.Email
		page["email_verified"] = decision.Principal.Account.IsEmailVerified()
	}
	s.render(w, r, http.StatusOK, "home", page)
}

// Sessions

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if s.redirectSignedIn(w, r) {
		return
	}
	s.render(w, r, http.StatusOK, "sessions/new", nil)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	account, session, err := s.svc.SignIn(r.Context(),
		r.PostFormValue(fieldEmail), r.PostFormValue(fieldPassword), clientMetadata(r))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.alert(w, r, "/sessions/new", MsgBadCredentials)
		return
	case errors.Is(err, auth.ErrAccountNotActive):
		s.redirect(w, r, "/sessions/new", Flash{
			Kind:    FlashAlert,
			Message: MsgAccountNotActive,
			Link:    "/reactivate?" + url.Values{fieldEmail: {account.Email}}.Encode(),
		})
		return
	default:
		s.fail(w, r, "sign in", err)
		return
	}

	if err := s.setSession(w, session.ID); err != nil {
		s.fail(w, r, "sign in", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if id, _ := s.readSession(r); !isZero(id) {
		if err := s.svc.SignOut(r.Context(), id); err != nil {
			s.fail(w, r, "sign out", err)
			return
		}
	}
	s.clearSession(w)
	http.Redirect(w, r, "/sessions/new", http.StatusSeeOther)
}

// redirectSignedIn sends callers with a usable session to the root page.
func (s *Server) redirectSignedIn(w http.ResponseWriter, r *http.Request) bool {
	_, ok, err := s.signedIn(w, r)
	if err != nil {
		s.fail(w, r, "session lookup", err)
		return true
	}
	if ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
	return ok
}

// Registrations

func (s *Server) handleNewRegistration(w http.ResponseWriter, r *http.Request) {
	if s.redirectSignedIn(w, r) {
		return
	}
	s.render(w, r, http.StatusOK, "registrations/new", nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	reg := auth.Registration{
		Email:                r.PostFormValue(fieldEmail),
		Password:             r.PostFormValue(fieldPassword),
		PasswordConfirmation: r.PostFormValue(fieldConfirmation),
	}
	_, session, err := s.svc.Register(r.Context(), reg, clientMetadata(r))
	if err != nil {
		if auth.IsValidationError(err) || errors.Is(err, auth.ErrDuplicateEmail) {
			s.unprocessable(w, "registrations/new", err, Page{fieldEmail: reg.Email})
			return
		}
		s.fail(w, r, "register", err)
		return
	}
	if err := s.setSession(w, session.ID); err != nil {
		s.fail(w, r, "register", err)
		return
	}
	s.notice(w, r, "/activate", MsgAccountCreated)
}

// Email verification

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	switch {
	case err == nil:
		s.notice(w, r, "/", MsgEmailVerified)
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		s.alert(w, r, "/sessions/new", MsgBadVerification)
	default:
		s.fail(w, r, "verify email", err)
	}
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request, p access.Principal) {
	sent, err := s.svc.ResendVerification(r.Context(), p.Account)
	if err != nil {
		s.fail(w, r, "resend verification", err)
		return
	}
	if !sent {
		s.notice(w, r, "/", MsgAlreadyVerified)
		return
	}
	s.notice(w, r, "/", MsgVerificationSent)
}

// Account

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request, p access.Principal) {
	if p.Account.IsEmailVerified() {
		s.notice(w, r, "/account", MsgAlreadyVerified)
		return
	}
	page := Page{
		fieldEmail:             p.Account.Email,
		"verification_pending": p.Account.HasPendingVerification(),
	}
	if p.Account.HasPendingVerification() {
		sent := p.Account.VerificationSentAt.UTC()
		page["verification_sent_at"] = sent.Format(time.RFC3339)
		page["verification_expires_at"] = sent.Add(s.svc.Verification().Window()).Format(time.RFC3339)
	}
	s.render(w, r, http.StatusOK, "activate", page)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, p access.Principal) {
	s.render(w, r, http.StatusOK, "account", Page{
		fieldEmail:          p.Account.Email,
		"status":            p.Account.Status.String(),
		"email_verified_at": p.Account.EmailVerifiedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request, p access.Principal) {
	if _, err := s.svc.Deactivate(r.Context(), p.Account); err != nil {
		s.fail(w, r, "deactivate", err)
		return
	}
	s.clearSession(w)
	s.notice(w, r, "/sessions/new", MsgDeactivated)
}

// Reactivation

func (s *Server) handleReactivationForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "reactivate", Page{fieldEmail: r.URL.Query().Get(fieldEmail)})
}

func (s *Server) handleRequestReactivation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RequestReactivation(r.Context(), r.PostFormValue(fieldEmail)); err != nil {
		s.fail(w, r, "request reactivation", err)
		return
	}
	s.notice(w, r, "/sessions/new", MsgReactivationSent)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.svc.Reactivate(r.Context(), chi.URLParam(r, "token"))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		s.alert(w, r, "/sessions/new", MsgBadReactivation)
		return
	default:
		s.fail(w, r, "reactivate", err)
		return
	}

	switch outcome {
	case auth.AlreadyActive:
		s.notice(w, r, "/sessions/new", MsgAlreadyActive)
	case auth.Reactivated:
		s.clearSession(w)
		s.notice(w, r, "/sessions/new", MsgReactivated)
	default:
		s.alert(w, r, "/sessions/new", MsgBadReactivation)
	}
}

// Password reset

func (s *Server) handleNewPassword(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "passwords/new", nil)
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RequestPasswordReset(r.Context(), r.PostFormValue(fieldEmail)); err != nil {
		s.fail(w, r, "request password reset", err)
		return
	}
	s.notice(w, r, "/sessions/new", MsgPasswordResetSent)
}

func (s *Server) handleEditPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	_, err := s.svc.PasswordResets().ValidateToken(r.Context(), token)
	switch {
	case err == nil:
		s.render(w, r, http.StatusOK, "passwords/edit", Page{"token": token})
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		s.alert(w, r, "/passwords/new", MsgBadPasswordReset)
	default:
		s.fail(w, r, "password reset lookup", err)
	}
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	err := s.svc.ResetPassword(r.Context(), token,
		r.PostFormValue(fieldPassword), r.PostFormValue(fieldConfirmation))
	switch {
	case err == nil:
		s.clearSession(w)
		s.notice(w, r, "/sessions/new", MsgPasswordUpdated)
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		s.alert(w, r, "/passwords/new", MsgBadPasswordReset)
	case auth.IsValidationError(err):
		s.unprocessable(w, "passwords/edit", err, Page{"token": token})
	default:
		s.fail(w, r, "password reset", err)
	}
}
