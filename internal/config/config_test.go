package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskscout/internal/domain"
)

func TestLoadConfigFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	defaults := DefaultConfig()
	assert.Equal(t, defaults.Path, cfg.Path)
	assert.Equal(t, defaults.MaxWorkers, cfg.MaxWorkers)
	assert.Equal(t, defaults.ThresholdBytes, cfg.ThresholdBytes)
	assert.Equal(t, defaults.MaterializeDepth, cfg.MaterializeDepth)
	assert.Equal(t, defaults.SortMode, cfg.SortMode)
	assert.Empty(t, cfg.SkipNames)
	assert.False(t, cfg.NoCache)
}

func TestLoadConfigFileReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `path: /srv/data
max_workers: 3
threshold_bytes: 4096
skip_names:
  - target
  - dist
sort_mode: name
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", cfg.Path)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, uint64(4096), cfg.ThresholdBytes)
	assert.Equal(t, []string{"target", "dist"}, cfg.SkipNames)
	assert.Equal(t, domain.SortByName, cfg.SortMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaterializeDepth, "unset keys keep their defaults")
}

func TestLoadConfigFileEnvironmentOverrides(t *testing.T) {
	t.Setenv("DISKSCOUT_MAX_WORKERS", "5")
	t.Setenv("DISKSCOUT_NO_CACHE", "true")

	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxWorkers)
	assert.True(t, cfg.NoCache)
}

func TestLoadConfigFileNormalizesBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: 0\nsort_mode: mod\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxWorkers, cfg.MaxWorkers)
	assert.Equal(t, domain.SortBySize, cfg.SortMode)
}

func TestSaveConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := DefaultConfig()
	want.Path = "/home/me"
	want.SortMode = domain.SortByName
	want.SkipNames = []string{"build"}
	want.Theme = "light"

	require.NoError(t, SaveConfigFile(path, want))
	got, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseArgs(t *testing.T) {
	cfg, err := ParseArgs(DefaultConfig(), []string{"-workers", "2", "-skip", "target, dist", "-no-cache", "/tmp/scan"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scan", cfg.Path)
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, []string{"target", "dist"}, cfg.SkipNames)
	assert.True(t, cfg.NoCache)

	_, err = ParseArgs(DefaultConfig(), []string{"-bogus"})
	assert.Error(t, err)
}
