package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRotatingLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.log")

	logger, err := NewRotatingLogger(DefaultRotatingLoggerConfig(path))
	require.NoError(t, err)

	logger.Info("derived role resolution failed")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "derived role resolution failed")
	require.Contains(t, string(data), `"ts"`)
}
