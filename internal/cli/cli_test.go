package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRootCommandRegistersAllSubcommands(t *testing.T) {
	root := NewCLI(nil).GetRootCommand()

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"hunt", "worker", "list", "info", "init-config"} {
		assert.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}
