// Package cli builds the orion command tree, grounded on the teacher's
// internal/infrastructure/migrations/cli.go: a CLI struct holding shared
// dependencies, with one private method per subcommand returning a
// *cobra.Command, assembled by GetRootCommand.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// CLI holds the dependencies every subcommand needs to bootstrap itself
// (each subcommand loads its own config/storage/logger from flags, since
// unlike the teacher's migrate tool, orion has no single shared backend
// connection opened ahead of command dispatch).
type CLI struct {
	logger *slog.Logger
}

// NewCLI returns a ready-to-use CLI. logger may be nil to use slog.Default.
func NewCLI(logger *slog.Logger) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{logger: logger}
}

// GetRootCommand assembles the full orion command tree.
func (c *CLI) GetRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orion",
		Short: "Distributed black-box optimization",
		Long:  "orion drives black-box experiments: suggest candidate points, run a user script against them, and converge toward an objective.",
	}

	rootCmd.AddCommand(
		c.huntCommand(),
		c.workerCommand(),
		c.listCommand(),
		c.infoCommand(),
		c.initConfigCommand(),
	)

	return rootCmd
}
