package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().PoolMaxPerKey, cfg.PoolMaxPerKey)
	require.Equal(t, Default().MaxExtractionChars, cfg.MaxExtractionChars)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_context_keywords: 5\ncache_ttl_hours: 1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxContextKeywords)
	require.Equal(t, 1, cfg.CacheTTLHours)
	require.Equal(t, Default().PoolBusyTimeout, cfg.PoolBusyTimeout) // unset fields keep their default
}

func TestDataDirHonorsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /tmp/custom-gandalf\n"), 0o644))

	_, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-gandalf", DataDir())
	require.Equal(t, "/tmp/custom-gandalf/cache", CacheDir())
}

func TestEnsureAllCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	dataDir := filepath.Join(t.TempDir(), "gandalf-state")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dataDir+"\n"), 0o644))
	_, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, EnsureAll())
	for _, dir := range []string{DataDir(), CacheDir(), ExportDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestDefaultDeadlinesAreNonZero(t *testing.T) {
	cfg := Default()
	require.Greater(t, cfg.SourceDeadline, time.Duration(0))
	require.Greater(t, cfg.RequestDeadline, time.Duration(0))
}
