package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("saved", "name", "weights")

	out := buf.String()
	require.Contains(t, out, `"msg":"saved"`)
	require.Contains(t, out, `"name":"weights"`)
	require.Contains(t, out, `"level":"INFO"`)
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden")
	require.Zero(t, buf.Len())
	require.False(t, log.Enabled(slog.LevelInfo))

	log.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	require.False(t, log.Enabled(slog.LevelError))
	log.Error("nowhere")
}

func TestPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.With("store", "/data").WithGroup("array").Debug("loaded", "name", "a b", "bytes", 16)

	out := buf.String()
	require.Contains(t, out, "DEBUG")
	require.Contains(t, out, "loaded")
	require.Contains(t, out, "store=/data")
	require.Contains(t, out, `array.name="a b"`)
	require.Contains(t, out, "array.bytes=16")
}

func TestPrettyGroupedAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).WithGroup("req").WithAttrs([]slog.Attr{slog.String("id", "42")})
	slog.New(h).Info("done", slog.Group("resp", slog.Int("status", 200)))

	out := buf.String()
	require.Contains(t, out, "req.id=42")
	require.Contains(t, out, "req.resp.status=200")
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	ctx := context.Background()
	require.False(t, h.Enabled(ctx, slog.LevelInfo))
	require.True(t, h.Enabled(ctx, slog.LevelWarn))
	require.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("via context")
	require.Contains(t, buf.String(), "via context")

	require.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestSetup(t *testing.T) {
	t.Parallel()
	for _, format := range []string{"", "pretty", "text", "JSON"} {
		var buf bytes.Buffer
		log, err := Setup(&buf, format, "info")
		require.NoError(t, err, format)
		log.Info("hello")
		require.Contains(t, buf.String(), "hello", format)
	}

	_, err := Setup(&bytes.Buffer{}, "xml", "info")
	require.Error(t, err)
	_, err = Setup(&bytes.Buffer{}, "json", "loud")
	require.Error(t, err)
}
