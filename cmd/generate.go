package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"eavsctl/internal/ui"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

var (
	generateMappings string
	generateOutDir   string
	generateDeploy   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [section]",
	Short: "Generate union view SQL from the mapping document",
	Long: `Generate the CREATE OR REPLACE VIEW statements for the union views,
one file per view under the output directory, covering every year the
mapping document defines. Without a section argument all views are
generated. With --deploy the statements are also pushed to the warehouse.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateMappings, "mappings", "m", "", "Override the mapping document path")
	generateCmd.Flags().StringVarP(&generateOutDir, "output", "o", "", "Output directory (default from config)")
	generateCmd.Flags().BoolVar(&generateDeploy, "deploy", false, "Push the generated views to the warehouse")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, store, err := loadEnvironment(generateMappings)
	if err != nil {
		return err
	}

	targets := views.DefaultViews
	if len(args) == 1 {
		v, ok := views.ViewByName(args[0])
		if !ok {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("unknown section %q", args[0]))
		}
		targets = []views.ViewConfig{v}
	}

	outDir := cfg.OutputDir
	if generateOutDir != "" {
		outDir = generateOutDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "failed to create output directory")
	}

	ui.ShowHeader("Generating union views")

	gen := views.NewGenerator(store)
	var failed bool
	for _, target := range targets {
		sql, warnings, err := gen.Generate(target)
		for _, w := range warnings {
			ui.ShowWarning(w)
		}
		if err != nil {
			ui.ShowError(err)
			failed = true
			continue
		}

		path := filepath.Join(outDir, target.OutputFile)
		if err := os.WriteFile(path, []byte(sql), 0o644); err != nil {
			ui.ShowError(err)
			failed = true
			continue
		}
		ui.ShowSuccess(fmt.Sprintf("%s -> %s", target.ViewName, path))
	}

	if generateDeploy && !failed {
		if err := deployGenerated(ctx, targets, gen); err != nil {
			return err
		}
	}

	if failed {
		return apperrors.New(apperrors.ErrCodeGenerationFailed, "one or more views failed to generate")
	}
	return nil
}

func deployGenerated(ctx context.Context, targets []views.ViewConfig, gen *views.Generator) error {
	cfg, _, err := loadEnvironment(generateMappings)
	if err != nil {
		return err
	}
	wh, err := connectWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	for _, target := range targets {
		sql, _, err := gen.Generate(target)
		if err != nil {
			return err
		}
		if err := wh.ReplaceView(ctx, sql); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("deployed %s", target.ViewName))
	}
	return nil
}
