// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillworks/quill/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "quill", Version: "1.2.3", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Info("account registered", "account_id", "01H")

	entry := decode(t, &buf)
	assert.Equal(t, "account registered", entry["msg"])
	assert.Equal(t, "quill", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "01H", entry["account_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "quill", Format: "text", Writer: &buf})
	require.NoError(t, err)

	logger.Warn("forced logout")
	assert.Contains(t, buf.String(), "forced logout")
	assert.Contains(t, buf.String(), "service=quill")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	_, err = New(Options{Level: "loud"})
	errutil.AssertErrorCode(t, err, "LOG_INVALID_LEVEL")
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf})
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.InfoContext(ctx, "traced")
	entry := decode(t, &buf)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", entry["trace_id"])
	assert.Equal(t, "b7ad6b7169203331", entry["span_id"])
}

func TestHandler_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf})
	require.NoError(t, err)

	logger.With("token", "raw-token").Info("login",
		"password", "hunter2",
		slog.Group("request", "password_confirmation", "hunter2", "path", "/sessions"))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "raw-token")

	entry := decode(t, &buf)
	assert.Equal(t, Redacted, entry["token"])
	assert.Equal(t, Redacted, entry["password"])
	request, ok := entry["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Redacted, request["password_confirmation"])
	assert.Equal(t, "/sessions", request["path"])
}
