package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"eavsctl/internal/mapping"
	"eavsctl/internal/storage"
	"eavsctl/internal/validate"
	"eavsctl/internal/views"
	apperrors "eavsctl/pkg/errors"
)

// WarehouseClient is the warehouse surface the loader drives.
type WarehouseClient interface {
	EnsureDataset(ctx context.Context, dataset string) error
	LoadCSV(ctx context.Context, dataset, table, stagePath, fileFormat string) error
	FetchViewDDL(ctx context.Context, dataset, view string) (string, error)
	ReplaceView(ctx context.Context, createSQL string) error
	Materialize(ctx context.Context, dataset, table, sourceFQN string) error
	validate.Counter
}

// ObjectStore is the upload surface the loader drives.
type ObjectStore interface {
	Upload(ctx context.Context, key, localPath string) error
	Bucket() string
}

// Step names accepted by Run.
const (
	StepUpload      = "upload"
	StepTables      = "tables"
	StepViews       = "views"
	StepMaterialize = "materialize"
	StepValidate    = "validate"
	StepAll         = "all"
)

// AllSteps is the full pipeline in execution order.
var AllSteps = []string{StepUpload, StepTables, StepViews, StepMaterialize, StepValidate}

// ItemStatus is the per-item outcome recorded in the run summary.
type ItemStatus string

const (
	ItemOK      ItemStatus = "OK"
	ItemSkipped ItemStatus = "SKIPPED"
	ItemWarning ItemStatus = "WARNING"
	ItemFailed  ItemStatus = "FAILED"
)

// ItemResult is one accumulated step outcome.
type ItemResult struct {
	Step   string
	Item   string
	Status ItemStatus
	Detail string
}

// Summary is the end-of-run report.
type Summary struct {
	Items []ItemResult
}

func (s *Summary) record(step, item string, status ItemStatus, format string, args ...interface{}) {
	s.Items = append(s.Items, ItemResult{
		Step:   step,
		Item:   item,
		Status: status,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Failed reports whether any item hard-failed.
func (s *Summary) Failed() bool {
	for _, item := range s.Items {
		if item.Status == ItemFailed {
			return true
		}
	}
	return false
}

// Warned reports whether any item produced a warning.
func (s *Summary) Warned() bool {
	for _, item := range s.Items {
		if item.Status == ItemWarning {
			return true
		}
	}
	return false
}

// Rows renders the summary as table rows.
func (s *Summary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Items))
	for _, item := range s.Items {
		rows = append(rows, []string{item.Step, item.Item, string(item.Status), item.Detail})
	}
	return rows
}

// Loader runs the per-year pipeline.
type Loader struct {
	Store     *mapping.Store
	Warehouse WarehouseClient
	Objects   ObjectStore
	OutDir    string // manual-review files land here
	DryRun    bool

	// Log receives progress lines; nil discards them.
	Log func(format string, args ...interface{})
}

func (l *Loader) logf(format string, args ...interface{}) {
	if l.Log != nil {
		l.Log(format, args...)
	}
}

// Run executes the selected steps for one survey year. Per-item failures
// are recorded and the run continues; the returned error is reserved for
// conditions that make every subsequent item pointless (bad year, bad
// step name).
func (l *Loader) Run(ctx context.Context, year, dataDir string, steps []string) (*Summary, error) {
	norm, ok := mapping.NormalizeYear(year)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("invalid year %q", year))
	}
	year = norm

	selected, err := expandSteps(steps)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, step := range AllSteps {
		if !selected[step] {
			continue
		}
		switch step {
		case StepUpload:
			l.runUpload(ctx, year, dataDir, summary)
		case StepTables:
			l.runTables(ctx, year, summary)
		case StepViews:
			l.runViews(ctx, year, summary)
		case StepMaterialize:
			l.runMaterialize(ctx, summary)
		case StepValidate:
			l.runValidate(ctx, year, summary)
		}
	}
	return summary, nil
}

func expandSteps(steps []string) (map[string]bool, error) {
	selected := make(map[string]bool)
	if len(steps) == 0 {
		steps = []string{StepAll}
	}
	for _, step := range steps {
		if step == StepAll {
			for _, s := range AllSteps {
				selected[s] = true
			}
			continue
		}
		valid := false
		for _, s := range AllSteps {
			if step == s {
				valid = true
				break
			}
		}
		if !valid {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("unknown step %q", step))
		}
		selected[step] = true
	}
	return selected, nil
}

func (l *Loader) runUpload(ctx context.Context, year, dataDir string, summary *Summary) {
	for _, section := range Sections() {
		src, err := FindSectionFile(dataDir, year, section)
		if err != nil {
			summary.record(StepUpload, section, ItemFailed, "%v", err)
			continue
		}
		key := storage.ObjectKey(year, section)
		if l.DryRun {
			summary.record(StepUpload, section, ItemSkipped, "dry-run: would upload %s to %s", src, key)
			continue
		}
		if err := l.Objects.Upload(ctx, key, src); err != nil {
			summary.record(StepUpload, section, ItemFailed, "%v", err)
			continue
		}
		l.logf("uploaded %s -> s3://%s/%s", filepath.Base(src), l.Objects.Bucket(), key)
		summary.record(StepUpload, section, ItemOK, "s3://%s/%s", l.Objects.Bucket(), key)
	}
}

func (l *Loader) runTables(ctx context.Context, year string, summary *Summary) {
	dataset := "eavs_" + year

	if l.DryRun {
		summary.record(StepTables, dataset, ItemSkipped, "dry-run: would create dataset and load %d tables", len(views.DefaultViews))
		return
	}

	if err := l.Warehouse.EnsureDataset(ctx, dataset); err != nil {
		summary.record(StepTables, dataset, ItemFailed, "%v", err)
		return
	}

	for _, cfg := range views.DefaultViews {
		table := fmt.Sprintf("eavs_county_%s_%s", year[2:], cfg.SectionTableKey)
		stagePath := fmt.Sprintf("@%s/%s", l.Store.Global.Stage, storage.ObjectKey(year, cfg.Name))
		if err := l.Warehouse.LoadCSV(ctx, dataset, table, stagePath, l.Store.Global.FileFormat); err != nil {
			summary.record(StepTables, table, ItemFailed, "%v", err)
			continue
		}
		l.logf("loaded %s.%s", dataset, table)
		summary.record(StepTables, table, ItemOK, "loaded from %s", stagePath)
	}
}

// runViews brings every union view up to date with the new year: existing
// views in the generated format get the year patched in; missing views are
// generated from scratch. A view that cannot be patched is dumped to a
// manual-review file and recorded as failed, without touching the
// warehouse copy.
func (l *Loader) runViews(ctx context.Context, year string, summary *Summary) {
	dataset := l.Store.Global.AnalyticsDataset

	for _, cfg := range views.DefaultViews {
		if l.DryRun {
			summary.record(StepViews, cfg.ViewName, ItemSkipped, "dry-run: would update view")
			continue
		}

		existing, err := l.Warehouse.FetchViewDDL(ctx, dataset, cfg.ViewName)
		if err != nil {
			if apperrors.GetErrorCode(err) == apperrors.ErrCodeViewNotFound {
				l.generateView(ctx, cfg, summary)
				continue
			}
			summary.record(StepViews, cfg.ViewName, ItemFailed, "%v", err)
			continue
		}

		updated, result, err := views.Patch(existing, l.Store, cfg, year)
		if err != nil {
			// A section that simply has no mappings for the year is not a
			// defect in the view; skip it and move on.
			if apperrors.GetErrorCode(err) == apperrors.ErrCodeMappingMissing {
				summary.record(StepViews, cfg.ViewName, ItemWarning, "%v, view left unchanged", err)
				continue
			}
			perr := apperrors.PatchError(cfg.ViewName, err)
			detail := perr.Error()
			if path, werr := l.writeManualReview(cfg.ViewName, existing); werr == nil {
				detail = fmt.Sprintf("%v (current definition saved to %s)", perr, path)
			}
			summary.record(StepViews, cfg.ViewName, ItemFailed, "%s", detail)
			continue
		}
		if result.Status == views.PatchAlreadyPresent {
			summary.record(StepViews, cfg.ViewName, ItemSkipped, "year %s already present", year)
			continue
		}
		if err := l.Warehouse.ReplaceView(ctx, updated); err != nil {
			summary.record(StepViews, cfg.ViewName, ItemFailed, "%v", err)
			continue
		}
		l.logf("patched %s with %s", cfg.ViewName, result.CTEName)
		summary.record(StepViews, cfg.ViewName, ItemOK, "added %s", result.CTEName)
	}
}

func (l *Loader) generateView(ctx context.Context, cfg views.ViewConfig, summary *Summary) {
	gen := views.NewGenerator(l.Store)
	sql, warnings, err := gen.Generate(cfg)
	if err != nil {
		summary.record(StepViews, cfg.ViewName, ItemFailed, "%v", err)
		return
	}
	for _, w := range warnings {
		summary.record(StepViews, cfg.ViewName, ItemWarning, "%s", w)
	}
	if err := l.Warehouse.ReplaceView(ctx, sql); err != nil {
		summary.record(StepViews, cfg.ViewName, ItemFailed, "%v", err)
		return
	}
	l.logf("created %s", cfg.ViewName)
	summary.record(StepViews, cfg.ViewName, ItemOK, "view created")
}

// writeManualReview saves a view's current definition for a human to patch
// by hand.
func (l *Loader) writeManualReview(view, sql string) (string, error) {
	dir := l.OutDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, view+"_current.sql")
	if err := os.WriteFile(path, []byte(sql), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (l *Loader) runMaterialize(ctx context.Context, summary *Summary) {
	dataset := l.Store.Global.AnalyticsDataset

	for _, cfg := range views.DefaultViews {
		table := "stg_" + cfg.CTEPrefix
		if l.DryRun {
			summary.record(StepMaterialize, table, ItemSkipped, "dry-run: would materialize")
			continue
		}
		src := fmt.Sprintf("%s.%s.%s", l.Store.Global.ProjectID, dataset, cfg.ViewName)
		if err := l.Warehouse.Materialize(ctx, dataset, table, src); err != nil {
			summary.record(StepMaterialize, table, ItemFailed, "%v", err)
			continue
		}
		l.logf("materialized %s.%s", dataset, table)
		summary.record(StepMaterialize, table, ItemOK, "snapshot of %s", cfg.ViewName)
	}
}

func (l *Loader) runValidate(ctx context.Context, year string, summary *Summary) {
	dataset := "eavs_" + year

	for _, cfg := range views.DefaultViews {
		table := fmt.Sprintf("eavs_county_%s_%s", year[2:], cfg.SectionTableKey)
		fqn := fmt.Sprintf("%s.%s.%s", l.Store.Global.ProjectID, dataset, table)
		if l.DryRun {
			summary.record(StepValidate, table, ItemSkipped, "dry-run: would verify")
			continue
		}

		result := validate.CheckTable(ctx, l.Warehouse, validate.TableSpec{
			FQN:       fqn,
			KeyColumn: "fips",
		})
		for _, check := range result.Checks {
			switch check.Status {
			case validate.StatusFail:
				summary.record(StepValidate, table, ItemFailed, "%s: %s", check.Name, check.Detail)
			case validate.StatusWarn:
				summary.record(StepValidate, table, ItemWarning, "%s: %s", check.Name, check.Detail)
			}
		}
		if !result.Failed() && !result.Warned() {
			summary.record(StepValidate, table, ItemOK, "all checks passed")
		}
	}
}
