package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epistimio/orion-go/internal/metrics"
	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
)

// infoCommand prints one experiment's configuration, search space, and
// trial-count breakdown, the Go analogue of Oríon's `orion info` command
// (not present in the retrieved original_source pack, built by extension
// from list.py's experiment-inspection idiom per SPEC_FULL.md's
// supplemented-features allowance).
func (c *CLI) infoCommand() *cobra.Command {
	var name, owner, configPath string

	cmd := &cobra.Command{
		Use:   "info --name NAME",
		Short: "Show one experiment's configuration and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInfo(cmd.Context(), name, owner, configPath)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "experiment name (required)")
	cmd.Flags().StringVarP(&owner, "user", "u", "", "experiment owner")
	cmd.Flags().StringVar(&configPath, "orion-config", "", "path to an orion.yaml configuration file")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *CLI) runInfo(ctx context.Context, name, owner, configPath string) error {
	rt, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}

	experiments, err := rt.backend.FetchExperiments(ctx, storage.ExperimentQuery{Name: name, User: owner})
	if err != nil {
		return err
	}
	if len(experiments) == 0 {
		return fmt.Errorf("info: no experiment named %q found", name)
	}
	cfg := experiments[0]
	for _, e := range experiments[1:] {
		if e.Version > cfg.Version {
			cfg = e
		}
	}

	sp, err := space.ParseSpace(cfg.SpaceCanon)
	if err != nil {
		return fmt.Errorf("info: invalid stored space: %w", err)
	}

	completed, err := rt.backend.CountCompletedTrials(ctx, cfg.ID)
	if err != nil {
		return err
	}
	broken, err := rt.backend.CountBrokenTrials(ctx, cfg.ID)
	if err != nil {
		return err
	}
	pending, err := rt.backend.FetchPendingTrials(ctx, cfg.ID)
	if err != nil {
		return err
	}

	isBroken := cfg.MaxBroken > 0 && broken > cfg.MaxBroken
	metrics.ExperimentsBroken.WithLabelValues(cfg.Name).Set(boolToFloat(isBroken))

	fmt.Printf("name:        %s\n", cfg.Name)
	fmt.Printf("version:     %d\n", cfg.Version)
	fmt.Printf("user:        %s\n", cfg.User)
	fmt.Printf("algorithm:   %s\n", cfg.Algorithm)
	fmt.Printf("max_trials:  %d\n", cfg.MaxTrials)
	fmt.Printf("pool_size:   %d\n", cfg.PoolSize)
	fmt.Printf("max_broken:  %d\n", cfg.MaxBroken)
	fmt.Printf("completed:   %d\n", completed)
	fmt.Printf("broken:      %d\n", broken)
	fmt.Printf("pending:     %d\n", len(pending))
	fmt.Printf("broken_flag: %t\n", isBroken)
	fmt.Printf("space:\n%s\n", sp.String())
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
