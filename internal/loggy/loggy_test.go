package loggy

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug, Format: "json"})

	logger.With("pass_id", "pass-123").Info("push finished", "synced", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "push finished", entry["msg"])
	assert.Equal(t, "pass-123", entry["pass_id"])
	assert.Equal(t, float64(2), entry["synced"])
	assert.Contains(t, entry["source"], "loggy/loggy_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn, Format: "text"})

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "pass-1")
	assert.Equal(t, "pass-1", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.True(t, strings.HasPrefix(NewRequestID(), "req-"))
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notesync.log")
	cfg := DefaultConfig()
	cfg.Output = path

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("hello file")
	require.NoError(t, logger.closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Info("nothing")
		logger.With("k", "v").Warn("still nothing")
	})
}
