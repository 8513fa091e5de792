// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/auth/memory"
	"github.com/quillworks/quill/internal/auth/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) auth.Store { return memory.New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	account := storetest.NewAccount(t, "a@x.com")
	require.NoError(t, store.Accounts().Create(ctx, account))

	account.Email = "mutated@x.com"
	got, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	got.Status = auth.StatusBanned
	again, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusActive, again.Status)
}

func TestStore_InTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := memory.New().InTx(ctx, func(auth.Store) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}
