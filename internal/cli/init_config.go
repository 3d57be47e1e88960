package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initConfigTemplate is the YAML written by `orion init-config`, commented
// to explain each section since a fresh orion.yaml has no other
// documentation attached to it.
const initConfigTemplate = `# orion configuration. Values not set here fall back to built-in defaults
# or ORION_*-prefixed environment variables (see internal/config).

storage:
  # one of: memory, lite (embedded sqlite), standard (postgres)
  profile: memory
  sqlite_path: orion.db
  postgres_dsn: ""
  redis_addr: ""

worker:
  heartbeat_ttl: 5m
  reservation_rate: 20
  worker_trials: 0
  tmp_dir: ""

log:
  level: info
  format: json
  output: stdout
  filename: ""
  max_size: 100
  max_backups: 3
  max_age: 28
  compress: true

metrics:
  enabled: true
  addr: ":9090"
  path: /metrics
`

// initConfigCommand writes a commented default orion.yaml, the config-layer
// analogue of `orion hunt --config` style bootstrapping in the original CLI,
// supplemented here since Orion-Go separates its own process configuration
// from the user script's annotated configuration file.
func (c *CLI) initConfigCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default orion.yaml configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var probe map[string]any
			if err := yaml.Unmarshal([]byte(initConfigTemplate), &probe); err != nil {
				return fmt.Errorf("init-config: template is not valid yaml: %w", err)
			}
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("init-config: %s already exists; remove it first", outPath)
			}
			return os.WriteFile(outPath, []byte(initConfigTemplate), 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "orion.yaml", "path to write the configuration file")
	return cmd
}
