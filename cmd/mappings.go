package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"eavsctl/internal/mapping"
	"eavsctl/internal/pipeline"
	"eavsctl/internal/ui"
	"eavsctl/internal/validate"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

var (
	mappingsFile   string
	mappingsOutDir string
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Inspect and review the field-mapping document",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show sections, years, and field counts",
	RunE:  runMappingsList,
}

var mappingsReviewCmd = &cobra.Command{
	Use:   "review <year> <data-dir>",
	Short: "Suggest corrections for mappings that miss the source headers",
	Long: `Compare each section's year mapping against the actual CSV headers and
write correction suggestions to a review file. Suggestions are advisory:
nothing is ever applied to the mapping document automatically.`,
	Args: cobra.ExactArgs(2),
	RunE: runMappingsReview,
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
	mappingsCmd.AddCommand(mappingsListCmd)
	mappingsCmd.AddCommand(mappingsReviewCmd)

	mappingsCmd.PersistentFlags().StringVarP(&mappingsFile, "mappings", "m", "", "Override the mapping document path")
	mappingsReviewCmd.Flags().StringVarP(&mappingsOutDir, "output", "o", "", "Directory for the review file (default from config)")
}

func runMappingsList(cmd *cobra.Command, args []string) error {
	_, store, err := loadEnvironment(mappingsFile)
	if err != nil {
		return err
	}

	ui.ShowHeader("Mapping document")
	ui.PrintKeyValue("project", store.Global.ProjectID)
	ui.PrintKeyValue("dataset", store.Global.AnalyticsDataset)
	ui.PrintKeyValue("bucket", store.Global.Bucket)

	var rows [][]string
	for _, name := range store.SectionNames() {
		section := store.Section(name)
		for _, year := range section.Years() {
			yearMap := section.YearMapping(year)
			mapped := 0
			for _, src := range yearMap {
				if src != "" {
					mapped++
				}
			}
			rows = append(rows, []string{
				name, year,
				fmt.Sprintf("%d/%d mapped", mapped, len(section.StandardFields)),
			})
		}
	}
	ui.SummaryTable([]string{"Section", "Year", "Coverage"}, rows)
	return nil
}

func runMappingsReview(cmd *cobra.Command, args []string) error {
	year, ok := mapping.NormalizeYear(args[0])
	if !ok {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("invalid year %q", args[0]))
	}
	dataDir := args[1]

	cfg, store, err := loadEnvironment(mappingsFile)
	if err != nil {
		return err
	}

	outDir := cfg.OutputDir
	if mappingsOutDir != "" {
		outDir = mappingsOutDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "failed to create output directory")
	}

	ui.ShowHeader(fmt.Sprintf("Mapping review — year %s", year))

	var report strings.Builder
	total := 0
	for _, view := range views.DefaultViews {
		path, err := pipeline.FindSectionFile(dataDir, year, view.Name)
		if err != nil {
			ui.ShowWarning(fmt.Sprintf("%s: %v", view.Name, err))
			continue
		}
		header, err := validate.PreflightHeader(path)
		if err != nil {
			ui.ShowWarning(fmt.Sprintf("%s: %v", view.Name, err))
			continue
		}

		section := store.Section(view.MappingKey)
		suggestions := section.ValidateAgainstHeader(year, header)
		total += len(suggestions)
		report.WriteString(mapping.FormatSuggestions(view.MappingKey, suggestions))
		report.WriteString("\n")
	}

	reviewPath := filepath.Join(outDir, fmt.Sprintf("mapping_review_%s.txt", year))
	if err := os.WriteFile(reviewPath, []byte(report.String()), 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "failed to write review file")
	}

	if total == 0 {
		ui.ShowSuccess("All mapped columns match the source headers")
	} else {
		ui.ShowWarning(fmt.Sprintf("%d mapping(s) need review — see %s", total, reviewPath))
	}
	return nil
}
