// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth/authtest"
	"github.com/quillworks/quill/internal/web"
)

func newServer(t *testing.T, cfg web.Config) (*authtest.Env, *web.Server) {
	t.Helper()
	env := authtest.NewEnv(t)
	srv, err := web.NewServer(env.Service, env.Signer, cfg, web.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return env, srv
}

// browser replays cookies between requests like a user agent would.
type browser struct {
	t       *testing.T
	handler http.Handler
	remote  string
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	return &browser{t: t, handler: h, remote: "192.0.2.10:4321", cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.RemoteAddr = b.remote
	req.Header.Set("User-Agent", "test-browser")
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder { return b.do(http.MethodGet, path, nil) }

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	return b.do(http.MethodPost, path, form)
}

// flash returns the pending flash message without consuming it.
func (b *browser) flash() *web.Flash {
	c, ok := b.cookies[web.FlashCookie]
	if !ok {
		return nil
	}
	return web.DecodeFlash(c.Value)
}

func (b *browser) hasSession() bool {
	_, ok := b.cookies[web.SessionCookie]
	return ok
}

func register(b *browser, email string) *httptest.ResponseRecorder {
	return b.post("/registrations", url.Values{
		"email":                 {email},
		"password":              {"secret"},
		"password_confirmation": {"secret"},
	})
}

func signIn(b *browser, email, password string) *httptest.ResponseRecorder {
	return b.post("/sessions", url.Values{"email": {email}, "password": {password}})
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var page map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

func requireRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, location, rec.Header().Get("Location"))
}
