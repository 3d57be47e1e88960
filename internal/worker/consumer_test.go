package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func literalTemplate() *space.Template {
	return &space.Template{}
}

func TestConsumeCompletedParsesResults(t *testing.T) {
	script := writeScript(t, `cat > "$ORION_RESULTS_PATH" <<'EOF'
[{"name":"objective","type":"objective","value":0.42}]
EOF
exit 0
`)
	c := NewConsumer("exp", script, literalTemplate(), nil, nil)
	c.TmpDir = t.TempDir()

	status, results, err := c.Consume(context.Background(), &trial.Trial{ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, trial.StatusCompleted, status)
	require.Len(t, results, 1)
	assert.Equal(t, 0.42, results[0].Value)
}

func TestConsumeBrokenOnNonzeroExit(t *testing.T) {
	script := writeScript(t, "exit 1\n")
	c := NewConsumer("exp", script, literalTemplate(), nil, nil)
	c.TmpDir = t.TempDir()

	status, _, err := c.Consume(context.Background(), &trial.Trial{ID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, trial.StatusBroken, status)
}

func TestConsumeAbortsWorkerOnExitCodeTwo(t *testing.T) {
	script := writeScript(t, "exit 2\n")
	c := NewConsumer("exp", script, literalTemplate(), nil, nil)
	c.TmpDir = t.TempDir()

	status, _, err := c.Consume(context.Background(), &trial.Trial{ID: "t3"})
	assert.Equal(t, trial.StatusBroken, status)
	assert.True(t, errors.Is(err, ErrAbortWorker))
}

func TestConsumeInterruptedOnContextCancel(t *testing.T) {
	script := writeScript(t, "sleep 5\nexit 0\n")
	c := NewConsumer("exp", script, literalTemplate(), nil, nil)
	c.TmpDir = t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	status, _, err := c.Consume(ctx, &trial.Trial{ID: "t4"})
	require.NoError(t, err)
	assert.Equal(t, trial.StatusInterrupted, status)
}

func TestConsumeCleansUpTrialDir(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	c := NewConsumer("exp", script, literalTemplate(), nil, nil)
	base := t.TempDir()
	c.TmpDir = base

	_, _, err := c.Consume(context.Background(), &trial.Trial{ID: "t5"})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(base, "exp", "t5"))
	assert.True(t, os.IsNotExist(statErr), "trial working directory must be removed on exit")
}
