package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eavsctl/internal/mapping"
	apperrors "eavsctl/pkg/errors"
)

const loaderDoc = `
global:
  project_id: eavs-prod
  analytics_dataset: eavs_analytics
  bucket: eavs-survey-data
  stage: eavs_stage
  file_format: eavs_csv_format

registration_mappings:
  standard_fields: [voters_registered]
  2022: {voters_registered: A1a}
  2024: {voters_registered: total_reg}

uocava_mappings:
  standard_fields: [ballots_transmitted]
  2022: {ballots_transmitted: B1a}
  2024: {ballots_transmitted: B1a}

mail_mappings:
  standard_fields: [ballots_returned]
  2022: {ballots_returned: C1b}
  2024: {ballots_returned: C1b}

participation_mappings:
  standard_fields: [total_voters]
  2022: {total_voters: F1a}
  2024: {total_voters: F1a}
`

// regViewSQL is an existing registration view in the generated format,
// carrying 2022 only.
const regViewSQL = `CREATE OR REPLACE VIEW eavs-prod.eavs_analytics.eavs_county_reg_union AS
WITH reg_2022 AS (
    SELECT
        fips,
        '2022' AS election_year,
        state,
        county,
        state_abbr,
        county_name,
        A1a AS voters_registered
    FROM eavs-prod.eavs_2022.eavs_county_22_a_reg
),
union_all AS (
    SELECT * FROM reg_2022
)
SELECT * FROM union_all;
`

type fakeWarehouse struct {
	ddl        map[string]string // view name -> existing definition
	replaced   []string          // CREATE OR REPLACE VIEW statements pushed
	datasets   []string
	loaded     []string // "<dataset>.<table>" in load order
	loadErrFor string   // table name that fails to load
	counts     map[string]int64
	dupes      map[string]int64
}

func (f *fakeWarehouse) EnsureDataset(_ context.Context, dataset string) error {
	f.datasets = append(f.datasets, dataset)
	return nil
}

func (f *fakeWarehouse) LoadCSV(_ context.Context, dataset, table, stagePath, fileFormat string) error {
	if table == f.loadErrFor {
		return apperrors.New(apperrors.ErrCodeLoadFailed, "stage file missing")
	}
	f.loaded = append(f.loaded, dataset+"."+table)
	return nil
}

func (f *fakeWarehouse) FetchViewDDL(_ context.Context, dataset, view string) (string, error) {
	if ddl, ok := f.ddl[view]; ok {
		return ddl, nil
	}
	return "", apperrors.New(apperrors.ErrCodeViewNotFound, "view not found")
}

func (f *fakeWarehouse) ReplaceView(_ context.Context, createSQL string) error {
	f.replaced = append(f.replaced, createSQL)
	return nil
}

func (f *fakeWarehouse) Materialize(_ context.Context, dataset, table, sourceFQN string) error {
	f.loaded = append(f.loaded, dataset+"."+table)
	return nil
}

func (f *fakeWarehouse) CountRows(_ context.Context, fqn string) (int64, error) {
	if n, ok := f.counts[fqn]; ok {
		return n, nil
	}
	return 3100, nil
}

func (f *fakeWarehouse) CountWhere(_ context.Context, fqn, predicate string) (int64, error) {
	return 0, nil
}

func (f *fakeWarehouse) DuplicateKeys(_ context.Context, fqn, keyColumn string) (map[string]int64, error) {
	return f.dupes, nil
}

type fakeObjects struct {
	uploads map[string]string // key -> local path
	errFor  string            // key that fails
}

func (f *fakeObjects) Upload(_ context.Context, key, localPath string) error {
	if key == f.errFor {
		return apperrors.New(apperrors.ErrCodeUploadFailed, "access denied")
	}
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[key] = localPath
	return nil
}

func (f *fakeObjects) Bucket() string { return "eavs-survey-data" }

func fullDataDir(t *testing.T) string {
	t.Helper()
	return makeDataDir(t,
		"Section A_ Registration/EAVS_county_24_A_REG.csv",
		"Section B_ UOCAVA/EAVS_county_24_B_UOCAVA.csv",
		"Section C_ Mail/EAVS_county_24_C_MAIL.csv",
		"Section F1 Participation/EAVS_county_24_F1_PART.csv",
	)
}

func newLoader(t *testing.T, wh *fakeWarehouse, obj *fakeObjects) *Loader {
	t.Helper()
	store, err := mapping.Parse([]byte(loaderDoc))
	require.NoError(t, err)
	return &Loader{
		Store:     store,
		Warehouse: wh,
		Objects:   obj,
		OutDir:    t.TempDir(),
	}
}

func TestRunFullPipeline(t *testing.T) {
	wh := &fakeWarehouse{ddl: map[string]string{"eavs_county_reg_union": regViewSQL}}
	obj := &fakeObjects{}
	loader := newLoader(t, wh, obj)

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{"all"})
	require.NoError(t, err)
	assert.False(t, summary.Failed(), "summary: %+v", summary.Items)

	// Upload: one object per section, keyed <year>/<section>.csv.
	assert.Len(t, obj.uploads, 4)
	assert.Contains(t, obj.uploads, "2024/registration.csv")

	// Tables: dataset created, four loads.
	assert.Equal(t, []string{"eavs_2024"}, wh.datasets)
	assert.Contains(t, wh.loaded, "eavs_2024.eavs_county_24_a_reg")
	assert.Contains(t, wh.loaded, "eavs_2024.eavs_county_24_f1_participation")

	// Views: the existing registration view was patched, the others were
	// generated from scratch.
	require.Len(t, wh.replaced, 4)
	var patched, generated int
	for _, sql := range wh.replaced {
		if strings.Contains(sql, "WITH reg_2022") {
			patched++
			assert.Contains(t, sql, "reg_2024")
			assert.Contains(t, sql, "total_reg AS voters_registered")
		} else {
			generated++
		}
	}
	assert.Equal(t, 1, patched)
	assert.Equal(t, 3, generated)

	// Materialize: staging snapshots for every view.
	assert.Contains(t, wh.loaded, "eavs_analytics.stg_reg")
	assert.Contains(t, wh.loaded, "eavs_analytics.stg_part")
}

func TestRunRecordsPerItemFailureAndContinues(t *testing.T) {
	wh := &fakeWarehouse{loadErrFor: "eavs_county_24_c_mail"}
	loader := newLoader(t, wh, &fakeObjects{})

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{StepTables})
	require.NoError(t, err)
	assert.True(t, summary.Failed())

	// The failing table did not stop the other three loads.
	assert.Len(t, wh.loaded, 3)
}

func TestRunUploadFailureDoesNotAbortBatch(t *testing.T) {
	obj := &fakeObjects{errFor: "2024/mail.csv"}
	loader := newLoader(t, &fakeWarehouse{}, obj)

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{StepUpload})
	require.NoError(t, err)
	assert.True(t, summary.Failed())
	assert.Len(t, obj.uploads, 3)
}

func TestRunPatchAlreadyPresentSkips(t *testing.T) {
	patched := strings.Replace(regViewSQL, "2022", "2024", -1)
	patched = strings.Replace(patched, "eavs_county_22_a_reg", "eavs_county_24_a_reg", 1)
	wh := &fakeWarehouse{ddl: map[string]string{"eavs_county_reg_union": patched}}
	loader := newLoader(t, wh, &fakeObjects{})

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{StepViews})
	require.NoError(t, err)
	assert.False(t, summary.Failed())

	var skipped bool
	for _, item := range summary.Items {
		if item.Item == "eavs_county_reg_union" {
			assert.Equal(t, ItemSkipped, item.Status)
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestRunViewsMissingYearMappingWarnsAndSkips(t *testing.T) {
	wh := &fakeWarehouse{ddl: map[string]string{"eavs_county_reg_union": regViewSQL}}
	loader := newLoader(t, wh, &fakeObjects{})

	// No section maps 2026, so the existing registration view gets a
	// warning, not a failure, and its definition is left alone.
	summary, err := loader.Run(context.Background(), "2026", fullDataDir(t), []string{StepViews})
	require.NoError(t, err)
	assert.False(t, summary.Failed())
	assert.True(t, summary.Warned())

	var warned bool
	for _, item := range summary.Items {
		if item.Item == "eavs_county_reg_union" {
			assert.Equal(t, ItemWarning, item.Status)
			warned = true
		}
	}
	assert.True(t, warned)

	// A healthy view with nothing to patch is not a manual-review case.
	assert.NoFileExists(t, filepath.Join(loader.OutDir, "eavs_county_reg_union_current.sql"))
	for _, sql := range wh.replaced {
		assert.NotContains(t, sql, "reg_union")
	}
}

func TestRunUnpatchableViewSavedForManualReview(t *testing.T) {
	foreign := "CREATE VIEW eavs_county_reg_union AS SELECT * FROM hand_written_join;"
	wh := &fakeWarehouse{ddl: map[string]string{"eavs_county_reg_union": foreign}}
	loader := newLoader(t, wh, &fakeObjects{})

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{StepViews})
	require.NoError(t, err)
	assert.True(t, summary.Failed())

	for _, item := range summary.Items {
		if item.Item == "eavs_county_reg_union" {
			assert.Equal(t, ItemFailed, item.Status)
			assert.Contains(t, item.Detail, "Could not patch view eavs_county_reg_union")
			assert.Contains(t, item.Detail, "current definition saved to")
		}
	}

	// The current definition was dumped for a human, untouched.
	saved, readErr := os.ReadFile(filepath.Join(loader.OutDir, "eavs_county_reg_union_current.sql"))
	require.NoError(t, readErr)
	assert.Equal(t, foreign, string(saved))

	// Nothing malformed was pushed for that view; the other three views
	// still got generated.
	for _, sql := range wh.replaced {
		assert.NotContains(t, sql, "hand_written_join")
	}
	assert.Len(t, wh.replaced, 3)
}

func TestRunValidateClassifiesSeverity(t *testing.T) {
	wh := &fakeWarehouse{
		counts: map[string]int64{
			// Out of range but not empty: warning.
			"eavs-prod.eavs_2024.eavs_county_24_a_reg": 2990,
			// Empty: error.
			"eavs-prod.eavs_2024.eavs_county_24_c_mail": 0,
		},
	}
	loader := newLoader(t, wh, &fakeObjects{})

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{StepValidate})
	require.NoError(t, err)
	assert.True(t, summary.Failed())
	assert.True(t, summary.Warned())
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	wh := &fakeWarehouse{}
	obj := &fakeObjects{}
	loader := newLoader(t, wh, obj)
	loader.DryRun = true

	summary, err := loader.Run(context.Background(), "2024", fullDataDir(t), []string{"all"})
	require.NoError(t, err)
	assert.False(t, summary.Failed())

	assert.Empty(t, obj.uploads)
	assert.Empty(t, wh.datasets)
	assert.Empty(t, wh.loaded)
	assert.Empty(t, wh.replaced)
}

func TestRunInvalidYear(t *testing.T) {
	loader := newLoader(t, &fakeWarehouse{}, &fakeObjects{})

	_, err := loader.Run(context.Background(), "24x", t.TempDir(), []string{"all"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestRunUnknownStep(t *testing.T) {
	loader := newLoader(t, &fakeWarehouse{}, &fakeObjects{})

	_, err := loader.Run(context.Background(), "2024", t.TempDir(), []string{"deploy"})
	require.Error(t, err)
}

func TestSummaryRows(t *testing.T) {
	s := &Summary{}
	s.record(StepUpload, "registration", ItemOK, "done")
	rows := s.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"upload", "registration", "OK", "done"}, rows[0])
}

func TestExpandStepsDefaultsToAll(t *testing.T) {
	selected, err := expandSteps(nil)
	require.NoError(t, err)
	for _, step := range AllSteps {
		assert.True(t, selected[step], fmt.Sprintf("step %s not selected", step))
	}
}
