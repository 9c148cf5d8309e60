package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Level: slog.LevelInfo, Output: &buf})
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("user added", "user", "alice")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "user=alice")
}

func TestNewJSONWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "sbnode.log")
	logger, closer := New(Options{Format: "JSON", Output: &buf, File: path})

	logger.Warn("restart failed", "op", "add_user")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), `"op":"add_user"`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"restart failed"`)
}
