// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package web is the HTTP surface of the account lifecycle. Every response is
// a redirect with a flash message, a small JSON page, or a 422 with
// validation errors.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/samber/oops"

	"github.com/quillworks/quill/internal/access"
	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/telemetry"
)

// Default sign-in throttle: 10 attempts per 3 minutes per client IP.
const (
	DefaultRateLimit  = 10
	DefaultRateWindow = 3 * time.Minute
)

// Config holds the HTTP surface settings.
type Config struct {
	Addr          string
	SecureCookies bool
	RateLimit     int
	RateWindow    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server routes requests to the auth service through the access gate.
type Server struct {
	svc     *auth.Service
	gate    *access.Gate
	signer  auth.TokenSigner
	cfg     Config
	logger  *slog.Logger
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewServer wires the routes. The gate is built over the service's session
// registry and account lookup.
func NewServer(svc *auth.Service, signer auth.TokenSigner, cfg Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	}
	if signer == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("signer is required")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultRateWindow
	}

	s := &Server{svc: svc, signer: signer, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	gate, err := access.NewGate(svc.Registry(), svc, access.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.gate = gate
	s.handler = telemetry.Middleware("quill.http")(s.routes())
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/up", s.handleUp)
	r.Get("/", s.handleHome)

	r.Get("/sessions/new", s.handleNewSession)
	r.With(s.throttle("/sessions/new")).Post("/sessions", s.handleSignIn)
	r.Delete("/sessions", s.handleSignOut)

	r.Get("/registrations/new", s.handleNewRegistration)
	r.Post("/registrations", s.handleRegister)

	r.Get("/verify-email/{token}", s.handleVerifyEmail)
	r.Post("/email-verification/resend", s.gated(access.RequireActive, s.handleResendVerification))

	r.Get("/activate", s.gated(access.RequireActive, s.handleActivate))
	r.Get("/account", s.gated(access.RequireVerified, s.handleOverview))
	r.Post("/account/deactivate", s.gated(access.RequireActive, s.handleDeactivate))

	r.Get("/reactivate", s.handleReactivationForm)
	r.Post("/reactivate", s.handleRequestReactivation)
	r.Get("/reactivate/{token}", s.handleReactivate)

	r.Get("/passwords/new", s.handleNewPassword)
	r.With(s.throttle("/passwords/new")).Post("/passwords", s.handleRequestPasswordReset)
	r.Get("/passwords/{token}", s.handleEditPassword)
	r.Put("/passwords/{token}", s.handleUpdatePassword)

	return r
}

// throttle limits requests per client IP and redirects refused ones to back.
func (s *Server) throttle(back string) func(http.Handler) http.Handler {
	return httprate.Limit(s.cfg.RateLimit, s.cfg.RateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			Throttled.WithLabelValues(routePattern(r)).Inc()
			s.logger.WarnContext(r.Context(), "request throttled", "path", r.URL.Path)
			s.redirect(w, r, back, Flash{Kind: FlashAlert, Message: MsgTryAgainLater})
		}),
	)
}

// instrument records metrics and a log line per request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		elapsed := time.Since(start)
		Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Start listens on the configured address and serves in the background. The
// returned channel receives a serve error, and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil, oops.Code("WEB_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.listener, s.srv = listener, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("web server failed", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
