package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"eavsctl/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "eavsctl",
	Short: "Manage EAVS survey data loads and union views",
	Long: `eavsctl moves EAVS county-level survey data between flat files,
object storage, and the warehouse, and maintains the longitudinal union
views that stack each survey year into a single schema.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Exit codes: 0 for success or
// warnings-only, 1 for any hard failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}
}
