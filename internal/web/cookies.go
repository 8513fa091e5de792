// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/oklog/ulid/v2"
)

// Cookie names.
const (
	SessionCookie = "session_id"
	FlashCookie   = "flash"
)

// PurposeSession scopes the signed reference carried by the session cookie.
const PurposeSession = "session"

// Flash kinds.
const (
	FlashNotice = "notice"
	FlashAlert  = "alert"
)

// Flash is a one-shot message shown on the next page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// Link is an optional follow-up action, such as the reactivation page.
	Link string `json:"link,omitempty"`
}

func (s *Server) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) expire(w http.ResponseWriter, name string) {
	c := s.cookie(name, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// setSession hands the session ID to the client as a signed reference
// without expiry.
func (s *Server) setSession(w http.ResponseWriter, id ulid.ULID) error {
	ref, err := s.signer.Sign(PurposeSession, id.String(), "", 0)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(SessionCookie, ref))
	return nil
}

func (s *Server) clearSession(w http.ResponseWriter) { s.expire(w, SessionCookie) }

// readSession returns the session ID the request carries. A zero ID means
// none; stale reports a cookie that failed verification.
func (s *Server) readSession(r *http.Request) (id ulid.ULID, stale bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return ulid.ULID{}, false
	}
	subject, _, err := s.signer.Verify(PurposeSession, c.Value)
	if err != nil {
		return ulid.ULID{}, true
	}
	id, err = ulid.Parse(subject)
	if err != nil {
		return ulid.ULID{}, true
	}
	return id, false
}

func (s *Server) setFlash(w http.ResponseWriter, f Flash) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(w, s.cookie(FlashCookie, base64.RawURLEncoding.EncodeToString(raw)))
}

// takeFlash reads and clears the pending flash.
func (s *Server) takeFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(FlashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	s.expire(w, FlashCookie)
	return DecodeFlash(c.Value)
}

// DecodeFlash parses a flash cookie value, returning nil when it is malformed.
func DecodeFlash(value string) *Flash {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}
