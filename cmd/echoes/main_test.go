package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/echoes/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echoes.log")
	cfg := &config.Config{Logging: config.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}}

	logger, closer := setupLogger(cfg)
	logger.Debug("hello", "component", "test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"hello"`), string(data))
}

func TestRootCommandHasRun(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", cmd.Name())
}
