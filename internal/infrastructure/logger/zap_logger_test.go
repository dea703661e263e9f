package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "follower.log")
	log, err := NewFileLogger(path, "debug")
	require.NoError(t, err)

	log.Debug("Order history not saved: entry_oid is missing")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "entry_oid is missing")
	assert.Contains(t, string(data), `"level":"debug"`)
}

func TestNew_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "follower.log")
	log, err := New(Config{Level: "warn", File: path, Format: "console"})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewLogger_BadLevelFallsBack(t *testing.T) {
	log, err := NewLogger("loud")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(0))
	assert.False(t, log.Core().Enabled(-1))
}
