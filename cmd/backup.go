package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"eavsctl/internal/mapping"
	"eavsctl/internal/ui"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

var (
	backupMappings string
	backupOutDir   string
	backupStaging  bool
)

var backupCmd = &cobra.Command{
	Use:   "backup <year>",
	Short: "Export a year's tables to local CSV files",
	Long: `Export each per-year section table (or, with --staging, the
materialized staging tables) to CSV files under the output directory,
one file per table. Per-table failures are reported and the remaining
exports continue.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVarP(&backupMappings, "mappings", "m", "", "Override the mapping document path")
	backupCmd.Flags().StringVarP(&backupOutDir, "output", "o", "", "Output directory (default from config)")
	backupCmd.Flags().BoolVar(&backupStaging, "staging", false, "Export the staging snapshots instead of the per-year tables")
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	year, ok := mapping.NormalizeYear(args[0])
	if !ok {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("invalid year %q", args[0]))
	}

	cfg, store, err := loadEnvironment(backupMappings)
	if err != nil {
		return err
	}
	wh, err := connectWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	outDir := cfg.OutputDir
	if backupOutDir != "" {
		outDir = backupOutDir
	}
	outDir = filepath.Join(outDir, "backup_"+year)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "failed to create backup directory")
	}

	ui.ShowHeader(fmt.Sprintf("Backup — year %s", year))

	var rows [][]string
	var failed bool
	for _, view := range views.DefaultViews {
		var fqn, name string
		if backupStaging {
			name = "stg_" + view.CTEPrefix
			fqn = fmt.Sprintf("%s.%s.%s", store.Global.ProjectID, store.Global.AnalyticsDataset, name)
		} else {
			name = fmt.Sprintf("eavs_county_%s_%s", year[2:], view.SectionTableKey)
			fqn = fmt.Sprintf("%s.eavs_%s.%s", store.Global.ProjectID, year, name)
		}

		path := filepath.Join(outDir, name+".csv")
		n, err := exportTable(ctx, wh, fqn, path)
		if err != nil {
			rows = append(rows, []string{name, "FAILED", err.Error()})
			failed = true
			continue
		}
		rows = append(rows, []string{name, "OK", fmt.Sprintf("%d rows -> %s", n, path)})
	}

	ui.SummaryTable([]string{"Table", "Status", "Detail"}, rows)
	if failed {
		return apperrors.New(apperrors.ErrCodeSQLExecution, "one or more exports failed")
	}
	ui.ShowSuccess("Backup complete")
	return nil
}

type csvExporter interface {
	ExportCSV(ctx context.Context, w io.Writer, query string) (int64, error)
}

func exportTable(ctx context.Context, wh csvExporter, fqn, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "cannot create backup file")
	}
	defer f.Close()

	n, err := wh.ExportCSV(ctx, f, fmt.Sprintf("SELECT * FROM %s", fqn))
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}
