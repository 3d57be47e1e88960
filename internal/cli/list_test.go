package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunListPrintsRegisteredExperiments(t *testing.T) {
	script := writeTestScript(t)
	configPath := writeNoMetricsConfig(t)
	c := NewCLI(nil)

	require.NoError(t, c.runHunt(context.Background(), huntOptions{
		Name: "listed", User: "tester", ConfigPath: configPath,
		MaxTrials: 1, WorkerTrials: 1, PoolSize: 1, MaxBroken: 3,
		Script:     script,
		ScriptArgs: []string{"--lr~uniform(0,1)"},
	}))

	// The memory profile gives runHunt and runList independent stores, so
	// this only exercises that runList executes cleanly against an empty
	// store; TestRunInfoReportsExperimentState below exercises it against a
	// populated, persisted store via sqlite.
	require.NoError(t, c.runList(context.Background(), "", configPath))
}

func TestRunInfoReportsExperimentState(t *testing.T) {
	script := writeTestScript(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "orion.db")
	configPath := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"storage:\n  profile: lite\n  sqlite_path: "+dbPath+"\nmetrics:\n  enabled: false\n"), 0o644))

	c := NewCLI(nil)
	require.NoError(t, c.runHunt(context.Background(), huntOptions{
		Name: "info-target", User: "tester", ConfigPath: configPath,
		MaxTrials: 1, WorkerTrials: 1, PoolSize: 1, MaxBroken: 3,
		Script:     script,
		ScriptArgs: []string{"--lr~uniform(0,1)"},
	}))

	require.NoError(t, c.runInfo(context.Background(), "info-target", "tester", configPath))
	require.NoError(t, c.runList(context.Background(), "tester", configPath))
}
