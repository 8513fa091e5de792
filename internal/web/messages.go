// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"errors"

	"github.com/quillworks/quill/internal/auth"
)

// Flash messages.
const (
	MsgSignIn           = "Please sign in."
	MsgAccountNotActive = "Your account is not active."
	MsgVerifyEmail      = "Please verify your email to activate your account."
	MsgTryAgainLater    = "Try again later."
	MsgBadCredentials   = "Try another email address or password."

	MsgAccountCreated   = "Account created. Please verify your email to activate your account."
	MsgEmailVerified    = "Email verified. Your account is now active."
	MsgBadVerification  = "That verification link is invalid or has expired."
	MsgVerificationSent = "Verification email sent. Please check your inbox."
	MsgAlreadyVerified  = "Your email is already verified."

	MsgDeactivated       = "Your account has been deactivated."
	MsgReactivationSent  = "If an account exists for that email, we've sent a reactivation link."
	MsgReactivated       = "Your account has been reactivated. Please sign in."
	MsgAlreadyActive     = "Your account is already active. Please sign in."
	MsgBadReactivation   = "That reactivation link is invalid or expired."
	MsgPasswordResetSent = "Password reset instructions sent (if user with that email address exists)."
	MsgPasswordUpdated   = "Your password has been updated. Please sign in."
	MsgBadPasswordReset  = "That password reset link is invalid or has expired. Please request a new one."
	MsgEmailAlreadyTaken = "Email address has already been taken"
	MsgInvalidSubmission = "The form could not be saved"
)

func validationMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		return MsgEmailAlreadyTaken
	case errors.Is(err, auth.ErrInvalidEmail):
		return "Email address is invalid"
	case errors.Is(err, auth.ErrEmptyPassword):
		return "Password can't be blank"
	case errors.Is(err, auth.ErrPasswordTooLong):
		return "Password is too long (maximum is 72 bytes)"
	case errors.Is(err, auth.ErrPasswordMismatch):
		return "Password confirmation doesn't match Password"
	default:
		return MsgInvalidSubmission
	}
}
