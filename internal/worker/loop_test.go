package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

func TestLoopDrivesExperimentToCompletion(t *testing.T) {
	algo := &fakeAlgorithm{points: [][]space.Param{paramPoint(0.25)}}
	exp, _ := newTestExperiment(t, algo)
	exp.WorkerTrials = 1
	exp.MaxTrials = 1
	exp.PoolSize = 1

	script := writeScript(t, `cat > "$ORION_RESULTS_PATH" <<'EOF'
[{"name":"objective","type":"objective","value":0.1}]
EOF
exit 0
`)
	tmpl := &space.Template{}
	consumer := NewConsumer(exp.Name, script, tmpl, nil, nil)
	consumer.TmpDir = t.TempDir()

	producer := NewProducer(exp, nil, nil)
	loop := NewLoop(exp, producer, consumer, 0, nil)

	code, err := loop.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)

	n, err := exp.CompletedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoopExitsBrokenWhenThresholdExceeded(t *testing.T) {
	algo := &fakeAlgorithm{}
	exp, backend := newTestExperiment(t, algo)
	exp.MaxBroken = 0

	ctx := context.Background()
	params := paramPoint(0.99)
	brokenTrial := &trial.Trial{
		ExperimentID: exp.ID,
		Params:       params,
		Status:       trial.StatusBroken,
	}
	brokenTrial.ID = trial.HashParams(params, nil)
	_, err := backend.RegisterTrial(ctx, brokenTrial)
	require.NoError(t, err)

	consumer := NewConsumer(exp.Name, "/bin/true", &space.Template{}, nil, nil)
	producer := NewProducer(exp, nil, nil)
	loop := NewLoop(exp, producer, consumer, 0, nil)

	code, err := loop.Run(ctx, 1)
	assert.Equal(t, ExitBroken, code)
	require.Error(t, err)
}

func TestLoopRespectsContextCancellation(t *testing.T) {
	algo := &fakeAlgorithm{}
	exp, _ := newTestExperiment(t, algo)
	consumer := NewConsumer(exp.Name, "/bin/true", &space.Template{}, nil, nil)
	producer := NewProducer(exp, nil, nil)
	loop := NewLoop(exp, producer, consumer, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, err := loop.Run(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
}
