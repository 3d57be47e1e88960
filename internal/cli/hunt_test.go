package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/config"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/worker"
)

// writeTestScript writes a trivial trial script that reports a fixed
// objective, so runHunt can drive a real Consumer.Consume call end to end
// without a network or CI dependency.
func writeTestScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trial.sh")
	script := "#!/bin/sh\ncat > \"$" + worker.ResultsEnvVar + "\" <<'EOF'\n" +
		`[{"name":"objective","type":"objective","value":0.5}]` + "\nEOF\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeNoMetricsConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  profile: memory\nmetrics:\n  enabled: false\n"), 0o644))
	return path
}

// writeSharedSQLiteConfig returns a config path backed by a real sqlite
// file, so two separate bootstrap calls (as in a hunt-then-resume scenario)
// observe the same persisted experiments; the memory profile gives each
// call an independent in-process store and can't exercise resume.
func writeSharedSQLiteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "orion.db")
	path := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"storage:\n  profile: lite\n  sqlite_path: "+dbPath+"\nmetrics:\n  enabled: false\n"), 0o644))
	return path
}

func TestRunHuntCompletesWithRandomSearch(t *testing.T) {
	script := writeTestScript(t)
	configPath := writeSharedSQLiteConfig(t)
	c := NewCLI(nil)

	err := c.runHunt(context.Background(), huntOptions{
		Name: "demo", User: "tester", ConfigPath: configPath,
		MaxTrials: 1, WorkerTrials: 10, PoolSize: 1, MaxBroken: 3,
		Script:     script,
		ScriptArgs: []string{"--lr~uniform(0,1)"},
	})
	require.NoError(t, err)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	backend, err := storage.New(context.Background(), cfg.StorageOptions(), nil)
	require.NoError(t, err)

	experiments, err := backend.FetchExperiments(context.Background(), storage.ExperimentQuery{Name: "demo"})
	require.NoError(t, err)
	require.Len(t, experiments, 1)

	completed, err := backend.CountCompletedTrials(context.Background(), experiments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, completed, "a single-trial experiment with ample worker-trials budget should complete its one trial")
}

func TestRunHuntRejectsSpaceChangeOnResume(t *testing.T) {
	script := writeTestScript(t)
	configPath := writeSharedSQLiteConfig(t)
	c := NewCLI(nil)

	base := huntOptions{
		Name: "reused", User: "tester", ConfigPath: configPath,
		MaxTrials: 1, WorkerTrials: 1, PoolSize: 1, MaxBroken: 3,
		Script: script,
	}

	first := base
	first.ScriptArgs = []string{"--lr~uniform(0,1)"}
	require.NoError(t, c.runHunt(context.Background(), first))

	second := base
	second.ScriptArgs = []string{"--lr~uniform(0,10)"}
	err := c.runHunt(context.Background(), second)
	require.Error(t, err)
}
