package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, mindmap.DefaultLimits(), cfg.Limits)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoadEnvOverridesLimits(t *testing.T) {
	t.Setenv("MAX_NODES_PER_MAP", "42")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Limits.MaxNodesPerMap)
}

func writeLimitsFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLimitsWatcherLoadsInitialFile(t *testing.T) {
	path := writeLimitsFile(t, t.TempDir(), "maxLabelLength: 100\nmaxNodesPerMap: 10\n")

	w, err := NewLimitsWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	limits := w.Current()
	assert.Equal(t, 100, limits.MaxLabelLength)
	assert.Equal(t, 10, limits.MaxNodesPerMap)
	// Unspecified fields keep their defaults.
	assert.Equal(t, mindmap.DefaultLimits().MaxEdgesPerMap, limits.MaxEdgesPerMap)
}

func TestLimitsWatcherRejectsInvalidFile(t *testing.T) {
	path := writeLimitsFile(t, t.TempDir(), "maxNodesPerMap: -1\n")

	_, err := NewLimitsWatcher(path, zap.NewNop())

	assert.Error(t, err)
}

func TestLimitsWatcherNotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeLimitsFile(t, dir, "maxNodesPerMap: 10\n")

	w, err := NewLimitsWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	updated := make(chan mindmap.Limits, 1)
	w.OnChange(func(l mindmap.Limits) { updated <- l })
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("maxNodesPerMap: 20\n"), 0o644))

	select {
	case l := <-updated:
		assert.Equal(t, 20, l.MaxNodesPerMap)
		assert.Equal(t, 20, w.Current().MaxNodesPerMap)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for limits reload")
	}
}
