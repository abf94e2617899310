package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelParsing(t *testing.T) {
	debug := New("debug", "text")
	assert.True(t, debug.Enabled(context.Background(), slog.LevelDebug))

	errOnly := New("error", "json")
	assert.False(t, errOnly.Enabled(context.Background(), slog.LevelInfo))

	// Unknown levels fall back to info.
	fallback := New("verbose", "text")
	assert.True(t, fallback.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, fallback.Enabled(context.Background(), slog.LevelDebug))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))

	ctx = WithRequestID(ctx, "req-456")
	assert.Equal(t, "req-456", RequestID(ctx))
}

func TestLoggerRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NotNil(t, FromContext(ctx), "missing logger falls back to default")

	custom := New("debug", "json")
	ctx = WithLogger(ctx, custom)
	assert.Same(t, custom, FromContext(ctx))
}

func TestL(t *testing.T) {
	ctx := WithLogger(context.Background(), New("info", "text"))
	require.NotNil(t, L(ctx))

	ctx = WithRequestID(ctx, "req-789")
	require.NotNil(t, L(ctx))
}
