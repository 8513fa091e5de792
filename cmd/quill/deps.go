// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/auth/memory"
	"github.com/quillworks/quill/internal/auth/postgres"
	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/notify"
	"github.com/quillworks/quill/internal/store"
)

// Migrator is the part of store.Migrator the migrate command drives.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenStore opens the auth store selected by cfg and returns a release
	// function. Default: openStore
	OpenStore func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Store, func(), error)

	// NewSink creates the notification sink selected by cfg.
	// Default: newSink
	NewSink func(cfg *config.Config, logger *slog.Logger) (notify.Sink, func(), error)

	// NewMigrator opens a migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// LogWriter receives the service logs. Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the bound web address once serve accepts
	// requests. Default: nil
	OnReady func(webAddr string)
}

func defaultDeps() *Deps {
	return &Deps{}
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.OpenStore == nil {
		out.OpenStore = openStore
	}
	if out.NewSink == nil {
		out.NewSink = newSink
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.LogWriter == nil {
		out.LogWriter = os.Stderr
	}
	return &out
}

// openStore returns the in-memory store when no database URL is configured,
// otherwise a migrated PostgreSQL store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("database.url is empty, using the in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return nil, nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.PoolConfig{MaxConns: cfg.Database.MaxConns}, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

func newSink(cfg *config.Config, logger *slog.Logger) (notify.Sink, func(), error) {
	switch cfg.Notify.Driver {
	case config.DriverNATS:
		sink, err := notify.NewNATSSink(cfg.Notify.NATSURL, cfg.Notify.Subject, nats.Name("quill"))
		if err != nil {
			return nil, nil, err
		}
		return sink, sink.Close, nil
	default:
		return notify.NewLogSink(logger), func() {}, nil
	}
}
