// Package cli wires the aion command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the root command with all subcommands attached.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aion",
		Short:         "AION autonomous agent runtime",
		Long:          "AION is a persistent autonomous AI agent: a planning loop with long-term memory, budget-aware model routing and self-management tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to the YAML config file")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		StartCmd(),
		VersionCmd(),
	)
	return root
}
