// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import "context"

// Notification kinds sent by the auth core.
const (
	KindEmailVerification = "email_verification"
	KindReactivation      = "reactivation"
	KindPasswordReset     = "password_reset"
)

// Notifier is the outbound notification sink. Send must not block on
// delivery, and delivery failures are the sink's concern.
type Notifier interface {
	Send(ctx context.Context, recipient, kind string, payload map[string]string)
}

// Links builds the absolute URLs embedded in notifications.
type Links interface {
	VerifyEmailURL(token string) string
	ReactivateURL(token string) string
	PasswordResetURL(token string) string
}
