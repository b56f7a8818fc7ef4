package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trustgate",
	Short: "Governance core for semi-autonomous agents",
	Long:  "Maintains decaying trust scores per entity, gates proposed actions against a versioned constraint set, and records every decision on a signed hash-linked evidence chain.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
