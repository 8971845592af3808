package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_SplitsConsoleByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closer, err := New(Options{Level: slog.LevelInfo, Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("progress", "tenant", "acme")
	logger.Warn("slow")
	logger.Error("broken")

	assert.Contains(t, stdout.String(), "progress")
	assert.Contains(t, stdout.String(), "tenant=acme")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.NotContains(t, stdout.String(), "slow")
	assert.Contains(t, stderr.String(), "slow")
	assert.Contains(t, stderr.String(), "broken")
	assert.NotContains(t, stderr.String(), "progress")
}

func TestNew_DebugFlagShowsDebugOnConsole(t *testing.T) {
	var stdout bytes.Buffer
	logger, _, err := New(Options{Level: slog.LevelInfo, Debug: true, Stdout: &stdout, Stderr: &bytes.Buffer{}})
	require.NoError(t, err)

	logger.Debug("details")
	assert.Contains(t, stdout.String(), "details")
}

func TestNew_FileReceivesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "collector.log")
	var stdout bytes.Buffer
	logger, closer, err := New(Options{
		Level:  slog.LevelInfo,
		Format: "json",
		File:   path,
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
	})
	require.NoError(t, err)

	logger.With("tenant", "acme").Debug("page fetched", "items", 3)
	require.NoError(t, closer.Close())

	assert.Empty(t, stdout.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "page fetched", rec["msg"])
	assert.Equal(t, "acme", rec["tenant"])
	assert.Equal(t, "DEBUG", rec["level"])
}
