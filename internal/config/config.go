// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package config loads Quill's configuration. Sources are layered, later
// winning: built-in defaults, a YAML file, QUILL_* environment variables,
// then command-line flags.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/quillworks/quill/internal/signedref"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "QUILL_"

// Config is the complete runtime configuration.
type Config struct {
	HTTP      HTTP      `koanf:"http" yaml:"http"`
	Database  Database  `koanf:"database" yaml:"database"`
	Secret    string    `koanf:"secret" yaml:"secret"`
	Auth      Auth      `koanf:"auth" yaml:"auth"`
	Notify    Notify    `koanf:"notify" yaml:"notify"`
	Metrics   Metrics   `koanf:"metrics" yaml:"metrics"`
	Log       Log       `koanf:"log" yaml:"log"`
	Telemetry Telemetry `koanf:"telemetry" yaml:"telemetry"`
}

// HTTP configures the public surface.
type HTTP struct {
	Addr          string `koanf:"addr" yaml:"addr"`
	BaseURL       string `koanf:"base_url" yaml:"base_url"`
	SecureCookies bool   `koanf:"secure_cookies" yaml:"secure_cookies"`
}

// Database configures storage. An empty URL selects the in-memory store.
type Database struct {
	URL         string `koanf:"url" yaml:"url"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
	MaxConns    int32  `koanf:"max_conns" yaml:"max_conns"`
}

// Auth holds token lifetimes and sign-in throttling.
type Auth struct {
	VerificationTTL  time.Duration `koanf:"verification_ttl" yaml:"verification_ttl"`
	ReactivationTTL  time.Duration `koanf:"reactivation_ttl" yaml:"reactivation_ttl"`
	PasswordResetTTL time.Duration `koanf:"password_reset_ttl" yaml:"password_reset_ttl"`
	SignInRateLimit  int           `koanf:"signin_rate_limit" yaml:"signin_rate_limit"`
	SignInRateWindow time.Duration `koanf:"signin_rate_window" yaml:"signin_rate_window"`
}

// Notify selects and tunes notification delivery.
type Notify struct {
	Driver     string `koanf:"driver" yaml:"driver"`
	NATSURL    string `koanf:"nats_url" yaml:"nats_url"`
	Subject    string `koanf:"subject" yaml:"subject"`
	Workers    int    `koanf:"workers" yaml:"workers"`
	QueueSize  int    `koanf:"queue_size" yaml:"queue_size"`
	MaxRetries int    `koanf:"max_retries" yaml:"max_retries"`
}

// Metrics configures the observability server. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Log configures the slog handler.
type Log struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// Telemetry configures trace export. An empty endpoint disables export.
type Telemetry struct {
	OTLPEndpoint string `koanf:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// Notification drivers.
const (
	DriverLog  = "log"
	DriverNATS = "nats"
)

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":               ":8080",
		"http.base_url":           "http://localhost:8080",
		"http.secure_cookies":     false,
		"database.url":            "",
		"database.auto_migrate":   true,
		"database.max_conns":      10,
		"secret":                  "",
		"auth.verification_ttl":   48 * time.Hour,
		"auth.reactivation_ttl":   2 * time.Hour,
		"auth.password_reset_ttl": 15 * time.Minute,
		"auth.signin_rate_limit":  10,
		"auth.signin_rate_window": 3 * time.Minute,
		"notify.driver":           DriverLog,
		"notify.nats_url":         "nats://127.0.0.1:4222",
		"notify.subject":          "quill.notifications",
		"notify.workers":          2,
		"notify.queue_size":       256,
		"notify.max_retries":      3,
		"metrics.addr":            "127.0.0.1:9100",
		"log.format":              "json",
		"log.level":               "info",
		"telemetry.otlp_endpoint": "",
	}
}

// Options selects the sources Load reads beyond the defaults.
type Options struct {
	// File is a YAML file path; empty skips the file layer.
	File string
	// Flags are parsed command-line flags; nil skips the flag layer.
	// Flag names use dashes for the key separator: --http-addr sets http.addr.
	Flags *pflag.FlagSet
	// SkipValidation returns the merged configuration without calling
	// Validate, for commands that read only part of it.
	SkipValidation bool
}

// Load builds a Config from the layered sources and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", opts.File).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			return FlagKey(f.Name), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if opts.SkipValidation {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var sections = map[string]bool{
	"http": true, "database": true, "auth": true, "notify": true,
	"metrics": true, "log": true, "telemetry": true,
}

// envKey maps QUILL_AUTH_VERIFICATION_TTL to auth.verification_ttl. The first
// segment is a section only when it names one; QUILL_SECRET maps to secret.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if section, rest, ok := strings.Cut(key, "_"); ok && sections[section] {
		return section + "." + rest
	}
	return key
}

// FlagKey maps a flag name to its config key: http-addr becomes http.addr and
// auth-verification-ttl becomes auth.verification_ttl.
func FlagKey(name string) string {
	if section, rest, ok := strings.Cut(name, "-"); ok && sections[section] {
		return section + "." + strings.ReplaceAll(rest, "-", "_")
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if len(c.Secret) < signedref.MinSecretBytes {
		return invalid("secret", "secret must be at least %d bytes", signedref.MinSecretBytes)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.BaseURL == "" {
		return invalid("http.base_url", "http.base_url is required")
	}
	for key, ttl := range map[string]time.Duration{
		"auth.verification_ttl":   c.Auth.VerificationTTL,
		"auth.reactivation_ttl":   c.Auth.ReactivationTTL,
		"auth.password_reset_ttl": c.Auth.PasswordResetTTL,
		"auth.signin_rate_window": c.Auth.SignInRateWindow,
	} {
		if ttl <= 0 {
			return invalid(key, "%s must be positive, got %s", key, ttl)
		}
	}
	if c.Auth.SignInRateLimit <= 0 {
		return invalid("auth.signin_rate_limit", "auth.signin_rate_limit must be positive")
	}
	switch c.Notify.Driver {
	case DriverLog:
	case DriverNATS:
		if c.Notify.NATSURL == "" {
			return invalid("notify.nats_url", "notify.nats_url is required for the nats driver")
		}
	default:
		return invalid("notify.driver", "notify.driver must be %q or %q, got %q", DriverLog, DriverNATS, c.Notify.Driver)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Secret != "" {
		c.Secret = "<redacted>"
	}
	if c.Database.URL != "" {
		c.Database.URL = redactURL(c.Database.URL)
	}
	return c
}

func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":xxxxx@" + host
}
