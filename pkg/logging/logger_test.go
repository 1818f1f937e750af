package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.FilePath = path

	logger, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger.Info("cluster detail served", zap.String("cluster", "aks-dev"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"cluster detail served"`)
	assert.Contains(t, string(data), `"cluster":"aks-dev"`)
}
