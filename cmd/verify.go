package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"eavsctl/internal/mapping"
	"eavsctl/internal/ui"
	"eavsctl/internal/validate"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

var (
	verifyMappings string
	verifyPrior    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <year>",
	Short: "Run post-load checks against a loaded year",
	Long: `Verify the per-year tables after a load: row counts against the
expected county range, FIPS format, duplicate FIPS values, and optional
drift against a prior year (--prior). Empty tables, bad keys, and
duplicates fail the run; out-of-range counts and drift are warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVarP(&verifyMappings, "mappings", "m", "", "Override the mapping document path")
	verifyCmd.Flags().StringVarP(&verifyPrior, "prior", "p", "", "Prior year to compare row counts against")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	year, ok := mapping.NormalizeYear(args[0])
	if !ok {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("invalid year %q", args[0]))
	}
	var priorYear string
	if verifyPrior != "" {
		priorYear, ok = mapping.NormalizeYear(verifyPrior)
		if !ok {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("invalid prior year %q", verifyPrior))
		}
	}

	cfg, store, err := loadEnvironment(verifyMappings)
	if err != nil {
		return err
	}
	wh, err := connectWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	ui.ShowHeader(fmt.Sprintf("Verify — year %s", year))

	var rows [][]string
	var failed, warned bool
	for _, view := range views.DefaultViews {
		table := fmt.Sprintf("eavs_county_%s_%s", year[2:], view.SectionTableKey)
		spec := validate.TableSpec{
			FQN:       fmt.Sprintf("%s.eavs_%s.%s", store.Global.ProjectID, year, table),
			KeyColumn: "fips",
		}
		if priorYear != "" {
			spec.PriorFQN = fmt.Sprintf("%s.eavs_%s.eavs_county_%s_%s",
				store.Global.ProjectID, priorYear, priorYear[2:], view.SectionTableKey)
		}

		result := validate.CheckTable(ctx, wh, spec)
		rows = append(rows, result.Rows()...)
		failed = failed || result.Failed()
		warned = warned || result.Warned()
	}

	ui.SummaryTable([]string{"Table", "Check", "Status", "Detail"}, rows)

	switch {
	case failed:
		return apperrors.New(apperrors.ErrCodeValidationFailed, "verification failed")
	case warned:
		ui.ShowWarning("Verification completed with warnings")
	default:
		ui.ShowSuccess("All checks passed")
	}
	return nil
}
