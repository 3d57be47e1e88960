package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToMemoryProfile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Profile)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  profile: lite
  sqlite_path: /tmp/orion.db
worker:
  worker_trials: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lite", cfg.Storage.Profile)
	assert.Equal(t, "/tmp/orion.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 5, cfg.Worker.WorkerTrials)
}

func TestLoadRejectsStandardProfileWithoutDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  profile: standard\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  profile: bogus\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestStorageOptionsAdaptsProfile(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Profile: "lite", SQLitePath: "x.db"}}
	opts := cfg.StorageOptions()
	assert.Equal(t, "x.db", opts.SQLitePath)
}
