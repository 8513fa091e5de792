// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/access"
	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/notify"
	"github.com/quillworks/quill/internal/observability"
	"github.com/quillworks/quill/internal/signedref"
	"github.com/quillworks/quill/internal/telemetry"
	"github.com/quillworks/quill/internal/web"
)

const (
	serviceName     = "quill"
	shutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the public HTTP surface, the notification dispatcher and the
metrics server until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, deps)
		},
	}

	// Defaults live in config.Defaults; these only override when set.
	cmd.Flags().String("http-addr", "", "public HTTP listen address")
	cmd.Flags().String("http-base-url", "", "absolute base URL used in emailed links")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (empty = in-memory store)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("notify-driver", "", "notification driver (log or nats)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

// newService wires the auth core over st.
func newService(cfg *config.Config, st auth.Store, notifier auth.Notifier, logger *slog.Logger) (*auth.Service, *signedref.Signer, error) {
	signer, err := signedref.NewSigner([]byte(cfg.Secret))
	if err != nil {
		return nil, nil, err
	}
	links, err := web.NewLinks(cfg.HTTP.BaseURL)
	if err != nil {
		return nil, nil, err
	}
	svc, err := auth.NewService(st, auth.NewArgon2idHasher(), signer, notifier, links,
		auth.WithLogger(logger),
		auth.WithVerificationWindow(cfg.Auth.VerificationTTL),
		auth.WithReactivationTTL(cfg.Auth.ReactivationTTL),
		auth.WithPasswordResetTTL(cfg.Auth.PasswordResetTTL),
	)
	if err != nil {
		return nil, nil, err
	}
	return svc, signer, nil
}

// runServe runs until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg *config.Config, deps *Deps) error {
	deps = deps.withDefaults()

	logger, err := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  deps.LogWriter,
	})
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("error flushing traces", "error", err)
		}
	}()

	st, closeStore, err := deps.OpenStore(ctx, cfg, logger)
	if err != nil {
		return oops.Code("SERVE_STORE_FAILED").Wrap(err)
	}
	defer closeStore()

	sink, closeSink, err := deps.NewSink(cfg, logger)
	if err != nil {
		return oops.Code("SERVE_NOTIFY_FAILED").Wrap(err)
	}
	defer closeSink()

	dispatcher, err := notify.NewDispatcher(sink,
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithRetry(cfg.Notify.MaxRetries, notify.DefaultBackoff),
		notify.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	dispatcher.Start(context.WithoutCancel(ctx))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("notifications left undelivered", "error", err)
		}
	}()

	svc, signer, err := newService(cfg, st, dispatcher, logger)
	if err != nil {
		return err
	}
	webServer, err := web.NewServer(svc, signer, web.Config{
		Addr:          cfg.HTTP.Addr,
		SecureCookies: cfg.HTTP.SecureCookies,
		RateLimit:     cfg.Auth.SignInRateLimit,
		RateWindow:    cfg.Auth.SignInRateWindow,
	}, web.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer *observability.Server
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, st.Ping, observability.WithLogger(logger))
		reg := obsServer.Registry()
		auth.RegisterMetrics(reg)
		access.RegisterMetrics(reg)
		notify.RegisterMetrics(reg)
		web.RegisterMetrics(reg)

		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	webErrCh, err := webServer.Start()
	if err != nil {
		if obsServer != nil {
			stopServer(logger, "observability", obsServer)
		}
		return err
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web")

	logger.Info("quill ready",
		"addr", webServer.Addr(),
		"base_url", cfg.HTTP.BaseURL,
		"notify_driver", cfg.Notify.Driver)
	if deps.OnReady != nil {
		deps.OnReady(webServer.Addr())
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	stopServer(logger, "web", webServer)
	if obsServer != nil {
		stopServer(logger, "observability", obsServer)
	}

	logger.Info("shutdown complete")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(logger *slog.Logger, name string, srv stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when either an error is received, the channel is closed, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
