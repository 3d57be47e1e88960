package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epistimio/orion-go/internal/algorithm"
	"github.com/epistimio/orion-go/internal/experiment"
	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/worker"
)

// workerCommand attaches an additional worker process to an experiment that
// already exists in storage, without redeclaring its search space. This is
// Orion-Go's realization of running several independent `orion hunt`
// processes against the same experiment name concurrently: each process
// gets its own in-memory Algorithm instance (here, an independent
// RandomSearch), coordinated purely through the storage backend's CAS
// reservation protocol (spec.md §5).
func (c *CLI) workerCommand() *cobra.Command {
	var (
		name, owner, configPath, script string
		workerTrials                    int
		seed                            int64
	)

	cmd := &cobra.Command{
		Use:   "worker --name NAME --script SCRIPT [flags]",
		Short: "Attach a worker to an already-built experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return c.runWorker(ctx, workerOptions{
				Name: name, User: owner, ConfigPath: configPath,
				Script: script, WorkerTrials: workerTrials, Seed: seed,
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "experiment name (required)")
	cmd.Flags().StringVarP(&owner, "user", "u", "", "experiment owner (required)")
	cmd.Flags().StringVar(&configPath, "orion-config", "", "path to an orion.yaml configuration file")
	cmd.Flags().StringVar(&script, "script", "", "path to the user script (required)")
	cmd.Flags().IntVar(&workerTrials, "worker-trials", 0, "number of reserve/produce/consume cycles this worker runs before exiting (0: unbounded)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for the default random-search algorithm")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("script")

	return cmd
}

type workerOptions struct {
	Name, User, ConfigPath, Script string
	WorkerTrials                   int
	Seed                           int64
}

func (c *CLI) runWorker(ctx context.Context, opts workerOptions) error {
	rt, err := bootstrap(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}

	existing, err := rt.backend.FetchExperiments(ctx, storage.ExperimentQuery{Name: opts.Name, User: opts.User})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return fmt.Errorf("worker: no experiment named %q for user %q; run hunt first", opts.Name, opts.User)
	}
	cfg := existing[0]
	for _, e := range existing[1:] {
		if e.Version > cfg.Version {
			cfg = e
		}
	}

	sp, err := space.ParseSpace(cfg.SpaceCanon)
	if err != nil {
		return fmt.Errorf("worker: invalid stored space for experiment %q: %w", opts.Name, err)
	}
	_, tmpl, err := space.NewBuilder().Build(cfg.Metadata.UserArgs)
	if err != nil {
		return fmt.Errorf("worker: rebuild template from stored args: %w", err)
	}

	algo := algorithm.NewRandomSearch(sp, cfg.MaxTrials, opts.Seed)
	exp, err := experiment.New(cfg, algo, rt.backend)
	if err != nil {
		return err
	}

	producer := worker.NewProducer(exp, nil, rt.logger)
	consumer := worker.NewConsumer(exp.Name, opts.Script, tmpl, nil, rt.logger)

	loop := worker.NewLoop(exp, producer, consumer, rt.cfg.Worker.HeartbeatTTL, rt.logger)
	loop.Notifier = rt.hub

	rt.logger.Info("worker attaching", "experiment", exp.Name, "version", exp.Version)
	_, err = loop.Run(ctx, opts.WorkerTrials)
	return err
}
