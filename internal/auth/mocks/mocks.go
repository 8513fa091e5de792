// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package mocks holds testify mocks of the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/quillworks/quill/internal/auth"
)

// Compile-time interface checks.
var (
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.TokenSigner    = (*MockTokenSigner)(nil)
	_ auth.Notifier       = (*MockNotifier)(nil)
)

type cleanupT interface {
	mock.TestingT
	Cleanup(func())
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct{ mock.Mock }

// NewMockPasswordHasher creates a MockPasswordHasher that asserts its
// expectations when the test ends.
func NewMockPasswordHasher(t cleanupT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockTokenSigner is a mock auth.TokenSigner.
type MockTokenSigner struct{ mock.Mock }

// NewMockTokenSigner creates a MockTokenSigner that asserts its expectations
// when the test ends.
func NewMockTokenSigner(t cleanupT) *MockTokenSigner {
	m := &MockTokenSigner{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Sign implements auth.TokenSigner.
func (m *MockTokenSigner) Sign(purpose, subject, binding string, ttl time.Duration) (string, error) {
	ret := m.Called(purpose, subject, binding, ttl)
	return ret.String(0), ret.Error(1)
}

// Verify implements auth.TokenSigner.
func (m *MockTokenSigner) Verify(purpose, token string) (string, string, error) {
	ret := m.Called(purpose, token)
	return ret.String(0), ret.String(1), ret.Error(2)
}

// MockNotifier is a mock auth.Notifier.
type MockNotifier struct{ mock.Mock }

// NewMockNotifier creates a MockNotifier that asserts its expectations when
// the test ends.
func NewMockNotifier(t cleanupT) *MockNotifier {
	m := &MockNotifier{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Send implements auth.Notifier.
func (m *MockNotifier) Send(ctx context.Context, recipient, kind string, payload map[string]string) {
	m.Called(ctx, recipient, kind, payload)
}
