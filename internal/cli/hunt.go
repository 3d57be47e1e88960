package cli

import (
	"context"
	"fmt"
	"os/user"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/epistimio/orion-go/internal/algorithm"
	"github.com/epistimio/orion-go/internal/experiment"
	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/worker"
)

// huntCommand builds or resumes an experiment and drives it to completion,
// grounded on original_source/src/orion/core/cli/hunt.py's add_subparser/
// main (ExperimentBuilder.fetch_full_config + EVCBuilder.build_from +
// workon), collapsed into a single Go command since Orion-Go's worker loop
// already performs workon's reserve/produce/consume cycle in-process.
func (c *CLI) huntCommand() *cobra.Command {
	var (
		name, owner, configPath string
		maxTrials, workerTrials int
		poolSize, maxBroken     int
		seed                    int64
	)

	cmd := &cobra.Command{
		Use:   "hunt --name NAME [flags] -- SCRIPT [script args with --flag~prior(...) annotations]",
		Short: "Build or resume an experiment and iterate it to completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				if u, err := user.Current(); err == nil {
					owner = u.Username
				} else {
					owner = "anonymous"
				}
			}
			ctx, cancel := interruptContext()
			defer cancel()
			return c.runHunt(ctx, huntOptions{
				Name:         name,
				User:         owner,
				ConfigPath:   configPath,
				MaxTrials:    maxTrials,
				WorkerTrials: workerTrials,
				PoolSize:     poolSize,
				MaxBroken:    maxBroken,
				Seed:         seed,
				Script:       args[0],
				ScriptArgs:   args[1:],
			})
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&name, "name", "n", "", "experiment name (required)")
	cmd.Flags().StringVarP(&owner, "user", "u", "", "experiment owner (default: current OS user)")
	cmd.Flags().StringVar(&configPath, "orion-config", "", "path to an orion.yaml configuration file")
	cmd.Flags().IntVar(&maxTrials, "max-trials", 0, "number of completed trials before the experiment is done (0: done before any trial runs)")
	cmd.Flags().IntVar(&workerTrials, "worker-trials", 0, "number of reserve/produce/consume cycles this worker runs before exiting (0: unbounded)")
	cmd.Flags().IntVar(&poolSize, "pool-size", 1, "number of concurrent pending trials to maintain")
	cmd.Flags().IntVar(&maxBroken, "max-broken", 3, "number of broken trials tolerated; one more marks the experiment broken")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for the default random-search algorithm")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

type huntOptions struct {
	Name, User, ConfigPath string
	MaxTrials, WorkerTrials, PoolSize, MaxBroken int
	Seed                                         int64
	Script                                       string
	ScriptArgs                                   []string
}

func (c *CLI) runHunt(ctx context.Context, opts huntOptions) error {
	rt, err := bootstrap(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}

	sp, tmpl, err := space.NewBuilder().Build(opts.ScriptArgs)
	if err != nil {
		return fmt.Errorf("hunt: parse command line: %w", err)
	}

	cfg, err := findOrCreateExperiment(ctx, rt.backend, opts, sp)
	if err != nil {
		return err
	}

	algo := algorithm.NewRandomSearch(sp, opts.MaxTrials, opts.Seed)
	exp, err := experiment.New(cfg, algo, rt.backend)
	if err != nil {
		return err
	}

	producer := worker.NewProducer(exp, nil, rt.logger)
	consumer := worker.NewConsumer(exp.Name, opts.Script, tmpl, nil, rt.logger)
	if rt.cfg.Worker.TmpDir != "" {
		consumer.TmpDir = rt.cfg.Worker.TmpDir
	}

	loop := worker.NewLoop(exp, producer, consumer, rt.cfg.Worker.HeartbeatTTL, rt.logger)
	loop.Notifier = rt.hub

	rt.logger.Info("hunt starting", "experiment", exp.Name, "version", exp.Version, "script", opts.Script)
	_, err = loop.Run(ctx, opts.WorkerTrials)
	return err
}

// findOrCreateExperiment resumes the latest version of an experiment by
// name/user if one exists, otherwise creates version 1. It does not run EVC
// conflict detection against a changed space; a changed annotated command
// line for an existing experiment name is rejected outright rather than
// silently branched, a deliberate scope reduction from the original's
// automatic branch-or-resolve flow (see DESIGN.md).
func findOrCreateExperiment(ctx context.Context, backend storage.Backend, opts huntOptions, sp *space.Space) (storage.ExperimentConfig, error) {
	existing, err := backend.FetchExperiments(ctx, storage.ExperimentQuery{Name: opts.Name, User: opts.User})
	if err != nil {
		return storage.ExperimentConfig{}, err
	}

	if len(existing) > 0 {
		latest := existing[0]
		for _, e := range existing[1:] {
			if e.Version > latest.Version {
				latest = e
			}
		}
		if latest.SpaceCanon != sp.String() {
			return storage.ExperimentConfig{}, fmt.Errorf(
				"hunt: experiment %q already exists with a different search space; branching is not supported by this command", opts.Name)
		}
		return latest, nil
	}

	cfg := storage.ExperimentConfig{
		ID:           uuid.NewString(),
		Name:         opts.Name,
		Version:      1,
		User:         opts.User,
		SpaceCanon:   sp.String(),
		Algorithm:    "random",
		MaxTrials:    opts.MaxTrials,
		WorkerTrials: opts.WorkerTrials,
		PoolSize:     opts.PoolSize,
		MaxBroken:    opts.MaxBroken,
		Metadata: storage.Metadata{
			User:       opts.User,
			UserScript: opts.Script,
			UserArgs:   opts.ScriptArgs,
		},
	}
	return backend.CreateExperiment(ctx, cfg)
}
