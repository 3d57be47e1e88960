package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

// ResultsEnvVar is the environment variable naming the results file path
// injected into the child process, per spec.md §4.7 step 3.
const ResultsEnvVar = "ORION_RESULTS_PATH"

// ErrAbortWorker signals that the Consumer hit an unrecoverable condition
// (the child exited with the CLI-misuse code 2) and the worker
// loop must stop entirely rather than continue to the next trial.
var ErrAbortWorker = errors.New("worker: aborted")

// ConfigRenderer materializes the trial's concrete configuration file, when
// the experiment's template declares one (space.ConfigOverlay.Render).
type ConfigRenderer interface {
	Render(path string, params []space.Param) ([]byte, error)
}

// Consumer executes a single reserved trial as a child process, grounded
// directly on original_source/src/orion/core/worker/consumer.py's
// Consumer.consume/_consume/interact_with_script, translated from Python's
// signal+exception idiom into context cancellation plus a typed result.
type Consumer struct {
	ExperimentName string
	ScriptPath     string
	Template       *space.Template
	ConfigOverlay  ConfigRenderer // nil if the template declares no config file
	TmpDir         string         // base temp dir; defaults to os.TempDir()/orion
	logger         *slog.Logger
}

// NewConsumer returns a Consumer for the given experiment/script/template.
func NewConsumer(experimentName, scriptPath string, tmpl *space.Template, overlay ConfigRenderer, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ExperimentName: experimentName,
		ScriptPath:     scriptPath,
		Template:       tmpl,
		ConfigOverlay:  overlay,
		TmpDir:         filepath.Join(os.TempDir(), "orion"),
		logger:         logger,
	}
}

// Consume runs t to completion (or failure) and returns the status it
// reached plus any results parsed from the results file. It never mutates
// storage itself — the worker loop does that with the returned outcome, so
// Consume stays storage-agnostic and easy to test.
//
// ctx cancellation maps to SIGTERM handling in the original: cancellation
// yields status interrupted. Every cancellation is handled the same way;
// a second rapid cancellation does not abort the worker.
func (c *Consumer) Consume(ctx context.Context, t *trial.Trial) (trial.Status, []trial.Result, error) {
	trialDir := filepath.Join(c.TmpDir, c.ExperimentName, t.ID)
	if err := os.MkdirAll(trialDir, 0o755); err != nil {
		return trial.StatusBroken, nil, fmt.Errorf("consumer: create trial dir: %w", err)
	}
	defer os.RemoveAll(trialDir)

	resultsPath := filepath.Join(trialDir, "results.out")
	if err := os.WriteFile(resultsPath, nil, 0o644); err != nil {
		return trial.StatusBroken, nil, fmt.Errorf("consumer: create results file: %w", err)
	}

	args, err := c.Template.Rehydrate(t.Params)
	if err != nil {
		return trial.StatusBroken, nil, fmt.Errorf("consumer: rehydrate template: %w", err)
	}

	if c.ConfigOverlay != nil && c.Template.ConfigPath != "" {
		rendered, err := c.ConfigOverlay.Render(c.Template.ConfigPath, t.Params)
		if err != nil {
			return trial.StatusBroken, nil, fmt.Errorf("consumer: render config: %w", err)
		}
		concretePath := filepath.Join(trialDir, "trial.conf")
		if err := os.WriteFile(concretePath, rendered, 0o644); err != nil {
			return trial.StatusBroken, nil, fmt.Errorf("consumer: write config: %w", err)
		}
	}

	return c.interactWithScript(ctx, args, resultsPath)
}

// interactWithScript launches the child process and waits for it,
// translating its fate into a status. Mirrors
// Consumer.interact_with_script: exit 0 → completed, exit 2 → abort the
// worker, any other nonzero → broken, SIGTERM/ctx-cancel → interrupted.
func (c *Consumer) interactWithScript(ctx context.Context, args []string, resultsPath string) (trial.Status, []trial.Result, error) {
	cmd := exec.CommandContext(ctx, c.ScriptPath, args...)
	cmd.Env = append(os.Environ(), ResultsEnvVar+"="+resultsPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return trial.StatusBroken, nil, fmt.Errorf("consumer: start script: %w", err)
	}

	waitErr := cmd.Wait()
	results, parseErr := c.parseResults(resultsPath)

	if ctx.Err() != nil {
		c.logger.Info("trial interrupted by cancellation", "script", c.ScriptPath)
		return trial.StatusInterrupted, results, nil
	}

	if waitErr == nil {
		return trial.StatusCompleted, results, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		if code == 2 {
			c.logger.Error("script exited with CLI-misuse code, aborting worker", "code", code)
			return trial.StatusBroken, results, ErrAbortWorker
		}
		c.logger.Warn("script exited nonzero, marking trial broken", "code", code)
		return trial.StatusBroken, results, nil
	}
	if parseErr != nil {
		c.logger.Debug("no results parsed for broken trial", "error", parseErr)
	}
	return trial.StatusBroken, results, fmt.Errorf("consumer: wait script: %w", waitErr)
}

type rawResult struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// parseResults reads the results file the child process was told to write
// to. An empty file (the common case for a crashed or never-run script) is
// not an error — it simply yields no results, mirroring the original's
// "ValueError because file is empty" swallow.
func (c *Consumer) parseResults(path string) ([]trial.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []rawResult
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil
	}
	out := make([]trial.Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, trial.Result{Name: e.Name, Type: trial.ResultType(e.Type), Value: e.Value})
	}
	return out, nil
}
