package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"eavsctl/internal/mapping"
	"eavsctl/internal/pipeline"
	"eavsctl/internal/ui"
	"eavsctl/internal/validate"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

var (
	preflightMappings string
	preflightStrict   bool
)

var preflightCmd = &cobra.Command{
	Use:   "preflight <year> <data-dir>",
	Short: "Check source files before uploading anything",
	Long: `Check each section's source CSV against the mapping document before
any external service is touched: the file must exist and parse, and every
mapped source column should appear in the header. Missing mapped columns
are warnings; unreadable or empty files are errors.`,
	Args: cobra.ExactArgs(2),
	RunE: runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
	preflightCmd.Flags().StringVarP(&preflightMappings, "mappings", "m", "", "Override the mapping document path")
	preflightCmd.Flags().BoolVar(&preflightStrict, "strict", false, "Treat warnings as failures")
}

func runPreflight(cmd *cobra.Command, args []string) error {
	year, ok := mapping.NormalizeYear(args[0])
	if !ok {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("invalid year %q", args[0]))
	}
	dataDir := args[1]

	_, store, err := loadEnvironment(preflightMappings)
	if err != nil {
		return err
	}

	ui.ShowHeader(fmt.Sprintf("Preflight — year %s", year))

	var rows [][]string
	var failed, warned bool
	for _, cfg := range views.DefaultViews {
		path, err := pipeline.FindSectionFile(dataDir, year, cfg.Name)
		if err != nil {
			rows = append(rows, []string{cfg.Name, "file", "FAIL", err.Error()})
			failed = true
			continue
		}

		result := validate.PreflightFile(path, store.Section(cfg.MappingKey), year)
		for _, check := range result.Checks {
			rows = append(rows, []string{cfg.Name, check.Name, string(check.Status), check.Detail})
		}
		failed = failed || result.Failed()
		warned = warned || result.Warned()
	}

	ui.SummaryTable([]string{"Section", "Check", "Status", "Detail"}, rows)

	switch {
	case failed || (preflightStrict && warned):
		return apperrors.New(apperrors.ErrCodeValidationFailed, "preflight failed")
	case warned:
		ui.ShowWarning("Preflight completed with warnings")
	default:
		ui.ShowSuccess("Preflight clean")
	}
	return nil
}
