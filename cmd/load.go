package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"eavsctl/internal/pipeline"
	"eavsctl/internal/storage"
	"eavsctl/internal/ui"
	apperrors "eavsctl/pkg/errors"
)

var (
	loadSteps    []string
	loadDryRun   bool
	loadMappings string
	loadYes      bool
)

var loadCmd = &cobra.Command{
	Use:   "load <year> <data-dir>",
	Short: "Load one survey year end to end",
	Long: `Load a survey year: upload the section CSVs to object storage, load
them into per-year warehouse tables, bring the union views up to date,
materialize the staging snapshots, and verify the result.

Steps can be run individually with --steps (upload, tables, views,
materialize, validate).`,
	Args: cobra.ExactArgs(2),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringSliceVarP(&loadSteps, "steps", "s", []string{"all"}, "Pipeline steps to run")
	loadCmd.Flags().BoolVarP(&loadDryRun, "dry-run", "d", false, "Show what would run without touching external services")
	loadCmd.Flags().StringVarP(&loadMappings, "mappings", "m", "", "Override the mapping document path")
	loadCmd.Flags().BoolVarP(&loadYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	year, dataDir := args[0], args[1]

	cfg, store, err := loadEnvironment(loadMappings)
	if err != nil {
		return err
	}

	ui.ShowHeader(fmt.Sprintf("EAVS load — year %s", year))
	ui.PrintKeyValue("data dir", dataDir)
	ui.PrintKeyValue("steps", strings.Join(loadSteps, ", "))
	ui.PrintKeyValue("bucket", store.Global.Bucket)
	ui.PrintKeyValue("project", store.Global.ProjectID)

	if !loadDryRun && !loadYes {
		if !ui.Confirm(fmt.Sprintf("Load year %s into %s?", year, store.Global.ProjectID), false) {
			ui.ShowInfo("Aborted")
			return nil
		}
	}

	loader := &pipeline.Loader{
		Store:  store,
		OutDir: cfg.OutputDir,
		DryRun: loadDryRun,
		Log: func(format string, args ...interface{}) {
			ui.ShowInfo(fmt.Sprintf(format, args...))
		},
	}

	if !loadDryRun {
		wh, err := connectWarehouse(ctx, cfg)
		if err != nil {
			return err
		}
		defer wh.Close()

		uploader, err := storage.NewUploader(ctx, store.Global.Bucket)
		if err != nil {
			return err
		}
		loader.Warehouse = wh
		loader.Objects = uploader
	}

	summary, err := loader.Run(ctx, year, dataDir, loadSteps)
	if err != nil {
		return err
	}
	return reportSummary(summary)
}

// reportSummary prints the end-of-run table and converts hard failures
// into a non-zero exit.
func reportSummary(summary *pipeline.Summary) error {
	ui.ShowHeader("Run summary")
	ui.SummaryTable([]string{"Step", "Item", "Status", "Detail"}, summary.Rows())

	switch {
	case summary.Failed():
		return apperrors.New(apperrors.ErrCodeValidationFailed, "one or more items failed")
	case summary.Warned():
		ui.ShowWarning("Completed with warnings")
	default:
		ui.ShowSuccess("All items completed")
	}
	return nil
}
