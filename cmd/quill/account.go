// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/notify"
)

// NewAccountCmd creates the account moderation command group.
func NewAccountCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and moderate accounts",
		Long: `Inspect accounts and apply moderation transitions. Every transition
destroys all sessions of the account together with the status change.`,
	}
	cmd.PersistentFlags().String("email", "", "email address of the account")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (overrides database.url)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show status, verification state and live sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *auth.Service, email string) error {
				account, err := svc.Credentials().FindByEmail(ctx, email)
				if err != nil {
					return err
				}
				sessions, err := svc.Registry().List(ctx, account.ID)
				if err != nil {
					return err
				}
				printAccount(cmd, account, svc.Verification().Window(), len(sessions))
				return nil
			})
		},
	})

	for _, m := range []struct {
		use, short string
		from       []auth.Status
		to         auth.Status
	}{
		{use: "suspend", short: "Suspend an account", to: auth.StatusSuspended},
		{use: "ban", short: "Ban an account", to: auth.StatusBanned},
		{use: "anonymise", short: "Anonymise an account (terminal)", to: auth.StatusAnonymised},
		{use: "unsuspend", short: "Lift a suspension", from: []auth.Status{auth.StatusSuspended}, to: auth.StatusActive},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   m.use,
			Short: m.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withService(cmd, deps, func(ctx context.Context, svc *auth.Service, email string) error {
					if len(m.from) > 0 {
						account, err := svc.Credentials().FindByEmail(ctx, email)
						if err != nil {
							return err
						}
						if !hasStatus(account.Status, m.from) {
							return oops.Code(auth.CodeInvalidTransition).
								With("status", account.Status.String()).
								Errorf("account %s is %s, not %s", email, account.Status, m.from[0])
						}
					}
					account, err := svc.Moderate(ctx, email, m.to)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", account.Email, account.Status)
					return nil
				})
			},
		})
	}

	return cmd
}

func hasStatus(s auth.Status, set []auth.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func printAccount(cmd *cobra.Command, account *auth.Account, window time.Duration, sessions int) {
	verified := "no"
	switch {
	case account.EmailVerifiedAt != nil:
		verified = account.EmailVerifiedAt.UTC().Format(time.RFC3339)
	case account.HasPendingVerification():
		verified = "pending, link expires " + account.VerificationSentAt.Add(window).UTC().Format(time.RFC3339)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", account.ID)
	fmt.Fprintf(out, "email:    %s\n", account.Email)
	fmt.Fprintf(out, "status:   %s\n", account.Status)
	fmt.Fprintf(out, "verified: %s\n", verified)
	fmt.Fprintf(out, "sessions: %d\n", sessions)
}

// withService opens the configured store and runs fn with an auth service
// over it. Notifications are logged, not delivered.
func withService(cmd *cobra.Command, deps *Deps, fn func(ctx context.Context, svc *auth.Service, email string) error) error {
	deps = deps.withDefaults()
	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}
	if email == "" {
		return oops.Code("CONFIG_INVALID").With("flag", "email").Errorf("--email is required")
	}

	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  deps.LogWriter,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, closeStore, err := deps.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher, err := notify.NewDispatcher(notify.NewLogSink(logger), notify.WithLogger(logger))
	if err != nil {
		return err
	}
	dispatcher.Start(ctx)
	defer func() {
		_ = dispatcher.Close(context.WithoutCancel(ctx)) //nolint:errcheck // log sink never blocks
	}()

	svc, _, err := newService(cfg, st, dispatcher, logger)
	if err != nil {
		return err
	}
	return fn(ctx, svc, email)
}
