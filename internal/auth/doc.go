// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package auth governs who may act on Quill: password authentication,
// account lifecycle state and the email verification capability.
//
// # Domain Types
//
// Account and Session should be created with NewAccount and NewSession.
// Status is a closed set; switches over it list every value so a new status
// shows up at every decision site.
//
// # Components
//
//   - Credentials - account creation, lookup by email, password verification
//   - Verification - single-use digest tokens for email verification
//   - Registry - live sessions per account, single and bulk invalidation
//   - Lifecycle - status transitions, each destroying the account's sessions
//     in the same transaction
//   - PasswordResets - signed password reset links
//   - Service - the operations above composed with notification dispatch
//
// Components are created with New* constructors that validate dependencies.
// Persistence goes through Store; see the postgres and memory subpackages.
package auth
