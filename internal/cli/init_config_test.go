package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInitConfigWritesValidYAML(t *testing.T) {
	root := NewCLI(nil).GetRootCommand()
	dir := t.TempDir()
	outPath := filepath.Join(dir, "orion.yaml")

	root.SetArgs([]string{"init-config", "--output", outPath})
	require.NoError(t, root.Execute())

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "storage")
	assert.Contains(t, decoded, "worker")
	assert.Contains(t, decoded, "log")
	assert.Contains(t, decoded, "metrics")
}

func TestInitConfigRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "orion.yaml")
	require.NoError(t, os.WriteFile(outPath, []byte("existing: true\n"), 0o644))

	root := NewCLI(nil).GetRootCommand()
	root.SetArgs([]string{"init-config", "--output", outPath})
	assert.Error(t, root.Execute())
}
