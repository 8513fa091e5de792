// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/pkg/errutil"
)

func TestConfigCommand_PrintsRedactedConfig(t *testing.T) {
	isolate(t)
	t.Setenv("QUILL_DATABASE_URL", "postgres://quill:hunter2@db:5432/quill")

	out, err := execute(t, &Deps{}, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, testSecret)
	assert.NotContains(t, out, "hunter2")

	var printed config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &printed))
	assert.Equal(t, "<redacted>", printed.Secret)
	assert.Equal(t, ":8080", printed.HTTP.Addr)
	assert.Equal(t, "postgres://quill:xxxxx@db:5432/quill", printed.Database.URL)
}

func TestConfigCommand_ReadsXDGFile(t *testing.T) {
	isolate(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "quill")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("http:\n  addr: \":7070\"\n"), 0o600))

	out, err := execute(t, &Deps{}, "config")
	require.NoError(t, err)
	var printed config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &printed))
	assert.Equal(t, ":7070", printed.HTTP.Addr)
}

func TestConfigCommand_InvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("QUILL_SECRET", "short")

	out, err := execute(t, &Deps{}, "config")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, out, "http:")
}
