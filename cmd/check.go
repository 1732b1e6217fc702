package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"eavsctl/internal/ui"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

var checkMappings string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check warehouse connectivity and union view health",
	Long: `Verify the connection settings work, then confirm every union view
exists and returns rows. A missing or empty view fails the check.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkMappings, "mappings", "m", "", "Override the mapping document path")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, store, err := loadEnvironment(checkMappings)
	if err != nil {
		return err
	}

	ui.ShowHeader("Connectivity check")
	wh, err := connectWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()
	ui.ShowSuccess(fmt.Sprintf("connected to %s as %s", cfg.Account, cfg.Username))

	var rows [][]string
	var failed bool
	for _, view := range views.DefaultViews {
		if _, err := wh.FetchViewDDL(ctx, store.Global.AnalyticsDataset, view.ViewName); err != nil {
			rows = append(rows, []string{view.ViewName, "FAIL", err.Error()})
			failed = true
			continue
		}

		fqn := fmt.Sprintf("%s.%s.%s", store.Global.ProjectID, store.Global.AnalyticsDataset, view.ViewName)
		count, err := wh.CountRows(ctx, fqn)
		switch {
		case err != nil:
			rows = append(rows, []string{view.ViewName, "FAIL", err.Error()})
			failed = true
		case count == 0:
			rows = append(rows, []string{view.ViewName, "FAIL", "view returns no rows"})
			failed = true
		default:
			rows = append(rows, []string{view.ViewName, "OK", fmt.Sprintf("%d rows", count)})
		}
	}

	ui.SummaryTable([]string{"View", "Status", "Detail"}, rows)
	if failed {
		return apperrors.New(apperrors.ErrCodeValidationFailed, "one or more views are unhealthy")
	}
	ui.ShowSuccess("All views healthy")
	return nil
}
