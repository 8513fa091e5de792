// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package store owns the PostgreSQL schema and connection pool.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// ConnectAttempts bounds how many times Connect pings before giving up.
	ConnectAttempts int
	// ConnectBackoff is the base of the exponential backoff between pings.
	ConnectBackoff time.Duration
}

// DefaultPoolConfig is used by Connect when cfg is the zero value.
var DefaultPoolConfig = PoolConfig{
	MaxConns:        10,
	ConnectAttempts: 5,
	ConnectBackoff:  500 * time.Millisecond,
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = DefaultPoolConfig.ConnectAttempts
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = DefaultPoolConfig.ConnectBackoff
	}
	return c
}

// ParsePoolConfig builds a pgxpool config from dsn and cfg.
func ParsePoolConfig(dsn string, cfg PoolConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_INVALID_DSN").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	return poolCfg, nil
}

// Connect opens a pool and waits until the database answers a ping, retrying
// with exponential backoff.
func Connect(ctx context.Context, dsn string, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	poolCfg, err := ParsePoolConfig(dsn, cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(uint64(cfg.ConnectAttempts-1), retry.NewExponential(cfg.ConnectBackoff)) //nolint:gosec // attempts is positive
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}

	logger.InfoContext(ctx, "database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns)
	return pool, nil
}
