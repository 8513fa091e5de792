// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package access_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/access"
	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/auth/authtest"
	"github.com/quillworks/quill/pkg/errutil"
)

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Resolve(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.Error(1)
}

func (m *mockSessions) Destroy(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

type fixture struct {
	env     *authtest.Env
	gate    *access.Gate
	logs    *bytes.Buffer
	account *auth.Account
	session *auth.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := authtest.NewEnv(t)
	logs := &bytes.Buffer{}
	gate, err := access.NewGate(env.Service.Registry(), env.Service,
		access.WithLogger(slog.New(slog.NewJSONHandler(logs, nil))))
	require.NoError(t, err)

	account, session, err := env.Service.Register(context.Background(),
		auth.Registration{Email: "a@x.com", Password: "secret", PasswordConfirmation: "secret"},
		auth.ClientMetadata{})
	require.NoError(t, err)
	return &fixture{env: env, gate: gate, logs: logs, account: account, session: session}
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	_, err := f.env.Service.VerifyEmail(context.Background(), f.env.LastToken(t, auth.KindEmailVerification))
	require.NoError(t, err)
}

func (f *fixture) sessionExists(t *testing.T) bool {
	t.Helper()
	_, err := f.env.Service.Registry().Resolve(context.Background(), f.session.ID)
	if errors.Is(err, auth.ErrUnauthenticated) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestNewGate_NilDependencies(t *testing.T) {
	env := authtest.NewEnv(t)

	_, err := access.NewGate(nil, env.Service)
	errutil.AssertErrorCode(t, err, "GATE_INVALID_CONFIG")
	_, err = access.NewGate(env.Service.Registry(), nil)
	errutil.AssertErrorCode(t, err, "GATE_INVALID_CONFIG")
}

func TestGate_Unauthenticated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("no reference", func(t *testing.T) {
		d, err := f.gate.Evaluate(ctx, ulid.ULID{}, access.RequireActive)
		require.NoError(t, err)
		assert.False(t, d.IsAllowed())
		assert.Equal(t, access.DenialUnauthenticated, d.Denial)
		assert.False(t, d.ClearSession)
		assert.True(t, errors.Is(d.Err(), auth.ErrUnauthenticated))
	})

	t.Run("unknown reference is cleared", func(t *testing.T) {
		d, err := f.gate.Evaluate(ctx, ulid.Make(), access.RequireActive)
		require.NoError(t, err)
		assert.Equal(t, access.DenialUnauthenticated, d.Denial)
		assert.True(t, d.ClearSession)
		assert.Nil(t, d.Principal.Account)
	})
}

func TestGate_ActiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.gate.Evaluate(ctx, f.session.ID, access.RequireActive)
	require.NoError(t, err)
	assert.True(t, d.IsAllowed())
	assert.NoError(t, d.Err())
	assert.Equal(t, f.account.ID, d.Principal.Account.ID)
	assert.Equal(t, f.session.ID, d.Principal.Session.ID)
}

func TestGate_UnverifiedEmailKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.gate.Evaluate(ctx, f.session.ID, access.RequireVerified)
	require.NoError(t, err)
	assert.False(t, d.IsAllowed())
	assert.Equal(t, access.DenialEmailNotVerified, d.Denial)
	assert.False(t, d.ClearSession)
	assert.NotNil(t, d.Principal.Account, "principal is available for the verify prompt")
	errutil.AssertErrorCode(t, d.Err(), auth.CodeEmailNotVerified)
	assert.True(t, f.sessionExists(t))

	f.verify(t)
	d, err = f.gate.Evaluate(ctx, f.session.ID, access.RequireVerified)
	require.NoError(t, err)
	assert.True(t, d.IsAllowed())
}

func TestGate_NonActiveAccountIsLoggedOut(t *testing.T) {
	for _, status := range []auth.Status{auth.StatusSuspended, auth.StatusBanned, auth.StatusAnonymised} {
		t.Run(status.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.verify(t)

			// Change status underneath the session, as an out-of-band writer would.
			require.NoError(t, f.env.Store.Accounts().UpdateStatus(ctx, f.account.ID, auth.StatusActive, status, f.env.Clock.Now()))

			d, err := f.gate.Evaluate(ctx, f.session.ID, access.RequireActive)
			require.NoError(t, err)
			assert.False(t, d.IsAllowed())
			assert.Equal(t, access.DenialAccountNotActive, d.Denial)
			assert.True(t, d.ClearSession)
			assert.True(t, errors.Is(d.Err(), auth.ErrAccountNotActive))
			assert.False(t, f.sessionExists(t))
			assert.Contains(t, f.logs.String(), "forced logout")

			d, err = f.gate.Evaluate(ctx, f.session.ID, access.RequireActive)
			require.NoError(t, err)
			assert.Equal(t, access.DenialUnauthenticated, d.Denial, "second request finds no session")
		})
	}
}

func TestGate_StorageFailures(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)
	errDown := errors.New("database down")

	sessions := &mockSessions{}
	id := ulid.Make()
	sessions.On("Resolve", mock.Anything, id).Return(nil, errDown)
	gate, err := access.NewGate(sessions, env.Service)
	require.NoError(t, err)

	_, err = gate.Evaluate(ctx, id, access.RequireActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	errutil.AssertErrorCode(t, err, "GATE_EVALUATE_FAILED")
	sessions.AssertExpectations(t)
}

func TestGate_MissingAccountDestroysSession(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)

	sessions := &mockSessions{}
	session, err := auth.NewSession(ulid.Make(), auth.ClientMetadata{}, env.Clock.Now())
	require.NoError(t, err)
	sessions.On("Resolve", mock.Anything, session.ID).Return(session, nil)
	sessions.On("Destroy", mock.Anything, session.ID).Return(nil).Once()

	gate, err := access.NewGate(sessions, env.Service)
	require.NoError(t, err)

	d, err := gate.Evaluate(ctx, session.ID, access.RequireActive)
	require.NoError(t, err)
	assert.Equal(t, access.DenialUnauthenticated, d.Denial)
	assert.True(t, d.ClearSession)
	sessions.AssertExpectations(t)
}

func TestRequirementAndDenialStrings(t *testing.T) {
	assert.Equal(t, "active", access.RequireActive.String())
	assert.Equal(t, "verified", access.RequireVerified.String())
	assert.Equal(t, "unknown", access.Requirement(9).String())
	assert.Equal(t, "email_not_verified", access.DenialEmailNotVerified.String())
	assert.Equal(t, "unknown", access.Denial(-1).String())
}
