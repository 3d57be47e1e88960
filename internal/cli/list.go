package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/epistimio/orion-go/internal/storage"
)

// listCommand prints every experiment (root and branched) grouped by EVC
// tree, the Go realization of original_source/src/orion/core/cli/list.py's
// root_experiments + build_experiment_tree walk, rendered as a flat
// indented table instead of a pprint'd Python dict tree.
func (c *CLI) listCommand() *cobra.Command {
	var owner, configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runList(cmd.Context(), owner, configPath)
		},
	}
	cmd.Flags().StringVarP(&owner, "user", "u", "", "filter by experiment owner (default: all users)")
	cmd.Flags().StringVar(&configPath, "orion-config", "", "path to an orion.yaml configuration file")
	return cmd
}

func (c *CLI) runList(ctx context.Context, owner, configPath string) error {
	rt, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}

	experiments, err := rt.backend.FetchExperiments(ctx, storage.ExperimentQuery{User: owner})
	if err != nil {
		return err
	}

	byParent := make(map[string][]storage.ExperimentConfig)
	var roots []storage.ExperimentConfig
	for _, e := range experiments {
		if e.Refers.ParentID == "" {
			roots = append(roots, e)
			continue
		}
		byParent[e.Refers.ParentID] = append(byParent[e.Refers.ParentID], e)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tVERSION\tUSER\tSTATUS")
	for _, root := range roots {
		printExperimentTree(ctx, w, rt, root, byParent, 0)
	}
	return nil
}

func printExperimentTree(ctx context.Context, w *tabwriter.Writer, rt *runtime, e storage.ExperimentConfig, byParent map[string][]storage.ExperimentConfig, depth int) {
	prefix := ""
	for i := 0; i < depth; i++ {
		prefix += "  "
	}

	status := experimentStatus(ctx, rt, e)
	fmt.Fprintf(w, "%s%s\t%d\t%s\t%s\n", prefix, e.Name, e.Version, e.User, status)

	for _, child := range byParent[e.ID] {
		printExperimentTree(ctx, w, rt, child, byParent, depth+1)
	}
}

func experimentStatus(ctx context.Context, rt *runtime, e storage.ExperimentConfig) string {
	completed, err := rt.backend.CountCompletedTrials(ctx, e.ID)
	if err != nil {
		return "unknown"
	}
	broken, err := rt.backend.CountBrokenTrials(ctx, e.ID)
	if err != nil {
		return "unknown"
	}
	if e.MaxBroken > 0 && broken > e.MaxBroken {
		return "broken"
	}
	if e.MaxTrials > 0 && completed >= e.MaxTrials {
		return "done"
	}
	return fmt.Sprintf("running (%d/%d completed)", completed, e.MaxTrials)
}
