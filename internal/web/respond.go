// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/quillworks/quill/internal/access"
	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/pkg/errutil"
)

// Page is the JSON document rendered for GET pages.
type Page map[string]any

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	if page == nil {
		page = Page{}
	}
	page["page"] = name
	if f := s.takeFlash(w, r); f != nil {
		page["flash"] = f
	}
	writeJSON(w, status, page)
}

// unprocessable answers a rejected form submission.
func (s *Server) unprocessable(w http.ResponseWriter, name string, err error, page Page) {
	if page == nil {
		page = Page{}
	}
	page["page"] = name
	page["errors"] = []string{validationMessage(err)}
	writeJSON(w, http.StatusUnprocessableEntity, page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, to string, f Flash) {
	if f.Message != "" {
		s.setFlash(w, f)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (s *Server) notice(w http.ResponseWriter, r *http.Request, to, msg string) {
	s.redirect(w, r, to, Flash{Kind: FlashNotice, Message: msg})
}

func (s *Server) alert(w http.ResponseWriter, r *http.Request, to, msg string) {
	s.redirect(w, r, to, Flash{Kind: FlashAlert, Message: msg})
}

// fail answers a storage or transport failure with a generic 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, op+" failed", err)
	writeJSON(w, http.StatusInternalServerError, Page{"error": "Something went wrong. Please try again."})
}

// principalHandler serves a request whose caller passed the gate.
type principalHandler func(w http.ResponseWriter, r *http.Request, p access.Principal)

// gated runs the access gate for req before h.
func (s *Server) gated(req access.Requirement, h principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision, err := s.evaluate(w, r, req)
		if err != nil {
			s.fail(w, r, "access check", err)
			return
		}
		if !decision.IsAllowed() {
			s.denied(w, r, decision)
			return
		}
		h(w, r, decision.Principal)
	}
}

// evaluate runs the gate and drops the session cookie when it no longer
// identifies a usable session.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, req access.Requirement) (access.Decision, error) {
	id, stale := s.readSession(r)
	decision, err := s.gate.Evaluate(r.Context(), id, req)
	if err != nil {
		return access.Decision{}, err
	}
	if stale || decision.ClearSession {
		s.clearSession(w)
	}
	return decision, nil
}

func (s *Server) denied(w http.ResponseWriter, r *http.Request, d access.Decision) {
	switch d.Denial {
	case access.DenialEmailNotVerified:
		s.alert(w, r, "/activate", MsgVerifyEmail)
	case access.DenialAccountNotActive:
		s.alert(w, r, "/sessions/new", MsgAccountNotActive)
	case access.DenialNone, access.DenialUnauthenticated:
		s.alert(w, r, "/sessions/new", MsgSignIn)
	default:
		s.alert(w, r, "/sessions/new", MsgSignIn)
	}
}

// signedIn reports whether the request carries a session of an active account.
func (s *Server) signedIn(w http.ResponseWriter, r *http.Request) (access.Decision, bool, error) {
	decision, err := s.evaluate(w, r, access.RequireActive)
	if err != nil {
		return access.Decision{}, false, err
	}
	return decision, decision.IsAllowed(), nil
}

func clientMetadata(r *http.Request) auth.ClientMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return auth.ClientMetadata{UserAgent: r.UserAgent(), IPAddress: ip}
}

func isZero(id ulid.ULID) bool { return id.Compare(ulid.ULID{}) == 0 }
