package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Options{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	log.Debug("pool scaled", zap.Int("target", 5))
	log.Info("run started", zap.String("run_id", "abc"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "run started", entry["msg"])
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFilters(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Options{Level: "warn", Format: "console", Output: path})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	log.Info("hidden")
	log.Warn("shown")
	require.NoError(t, log.Sync())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}
