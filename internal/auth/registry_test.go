// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/auth/authtest"
	"github.com/quillworks/quill/pkg/errutil"
)

func TestNewRegistry_RequiresStore(t *testing.T) {
	r, err := auth.NewRegistry(nil)
	require.Error(t, err)
	assert.Nil(t, r)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)
	account := registerAndSignIn(t, env, "a@x.com", 0)
	registry := env.Service.Registry()

	session, err := registry.Create(ctx, account.ID, auth.ClientMetadata{UserAgent: "curl", IPAddress: "127.0.0.1"})
	require.NoError(t, err)

	t.Run("resolve returns the stored session", func(t *testing.T) {
		got, err := registry.Resolve(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.AccountID, got.AccountID)
		assert.Equal(t, "curl", got.UserAgent)
		assert.Equal(t, session.CreatedAt, got.CreatedAt)
	})

	t.Run("resolve does not extend the session", func(t *testing.T) {
		env.Clock.Advance(time.Hour)
		got, err := registry.Resolve(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.CreatedAt, got.CreatedAt)
	})

	t.Run("unknown and zero identifiers are unauthenticated", func(t *testing.T) {
		for _, id := range []ulid.ULID{ulid.Make(), {}} {
			_, err := registry.Resolve(ctx, id)
			assert.True(t, errors.Is(err, auth.ErrUnauthenticated))
			errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
		}
	})

	t.Run("destroy is idempotent", func(t *testing.T) {
		require.NoError(t, registry.Destroy(ctx, session.ID))
		require.NoError(t, registry.Destroy(ctx, session.ID))
		_, err := registry.Resolve(ctx, session.ID)
		assert.True(t, errors.Is(err, auth.ErrUnauthenticated))
	})

	t.Run("destroy all reports the count", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := registry.Create(ctx, account.ID, auth.ClientMetadata{})
			require.NoError(t, err)
		}
		before, err := registry.List(ctx, account.ID)
		require.NoError(t, err)

		n, err := registry.DestroyAll(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(len(before)), n)

		after, err := registry.List(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, after)
	})
}
