package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithContext_AddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", true)

	ctx := ContextWith(context.Background(), "request_id", "abc")
	ctx = ContextWith(ctx, "user_id", 7)
	WithContext(ctx).Info("hello")

	out := buf.String()
	require.Contains(t, out, `"request_id":"abc"`)
	require.Contains(t, out, `"user_id":7`)
	require.Contains(t, out, `"msg":"hello"`)
}

func TestParseLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "WARN", false)

	Info("skipped")
	Warn("kept")

	require.NotContains(t, buf.String(), "skipped")
	require.Contains(t, buf.String(), "kept")
}
