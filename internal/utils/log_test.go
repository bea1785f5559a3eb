package utils

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptor(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)

	n, err := li.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = li.Write([]byte("ond\nthird"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "line=1 "))
	assert.True(t, strings.HasSuffix(lines[1], "second"))
	assert.True(t, strings.HasPrefix(lines[2], "line=3 "))
	assert.True(t, strings.HasSuffix(lines[2], "third"))
}

func TestMultiLogHandler(t *testing.T) {
	var debug, info bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).With("component", "test")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("hidden from info")
	logger.Info("seen by both")

	assert.Contains(t, debug.String(), "hidden from info")
	assert.NotContains(t, info.String(), "hidden from info")
	assert.Contains(t, info.String(), "seen by both")
	assert.Contains(t, info.String(), "component=test")
}
