package views

import (
	"regexp"
	"strings"
	"testing"

	"eavsctl/internal/mapping"
	apperrors "eavsctl/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generatorDoc = `
global:
  project_id: eavs-prod
  analytics_dataset: eavs_analytics

x_mappings:
  standard_fields:
    - fips
    - election_year
    - state
    - county
    - a
    - b
  2016:
    a: col_a
    b: "null"
  2018:
    a: col_a2
    b: col_b2
`

var testView = ViewConfig{
	Name:            "x",
	MappingKey:      "x_mappings",
	SectionTableKey: "x_sec",
	CTEPrefix:       "x",
	ViewName:        "eavs_county_x_union",
	OutputFile:      "x_union.sql",
}

func loadStore(t *testing.T, doc string) *mapping.Store {
	t.Helper()
	store, err := mapping.Parse([]byte(doc))
	require.NoError(t, err)
	return store
}

func TestGenerateTwoYearScenario(t *testing.T) {
	gen := NewGenerator(loadStore(t, generatorDoc))

	sql, warnings, err := gen.Generate(testView)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.True(t, strings.HasPrefix(sql,
		"CREATE OR REPLACE VIEW eavs-prod.eavs_analytics.eavs_county_x_union AS\n"))
	assert.Equal(t, 1, strings.Count(sql, "UNION ALL"))

	// 2016: mapped field keeps its source, null sentinel falls back to NULL.
	assert.Contains(t, sql, "col_a AS a")
	assert.Contains(t, sql, "NULL AS b")
	// 2018: both fields mapped.
	assert.Contains(t, sql, "col_a2 AS a")
	assert.Contains(t, sql, "col_b2 AS b")

	assert.Contains(t, sql, "'2016' AS election_year")
	assert.Contains(t, sql, "'2018' AS election_year")
	assert.Contains(t, sql, "FROM eavs-prod.eavs_2016.eavs_county_16_x_sec")
	assert.Contains(t, sql, "FROM eavs-prod.eavs_2018.eavs_county_18_x_sec")

	// Year blocks appear in ascending year order.
	assert.Less(t, strings.Index(sql, "'2016'"), strings.Index(sql, "'2018'"))
}

func TestGenerateIsDeterministic(t *testing.T) {
	gen := NewGenerator(loadStore(t, generatorDoc))

	first, _, err := gen.Generate(testView)
	require.NoError(t, err)
	second, _, err := gen.Generate(testView)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// aliasLists extracts the output column aliases of each SELECT block.
func aliasLists(t *testing.T, sql string) [][]string {
	t.Helper()
	aliasRe := regexp.MustCompile(`(?:AS\s+(\w+)|^\s*(\w+))\s*,?\s*$`)

	var blocks [][]string
	var current []string
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "SELECT":
			current = nil
		case strings.HasPrefix(trimmed, "FROM "):
			blocks = append(blocks, current)
		case current != nil || trimmed != "":
			if m := aliasRe.FindStringSubmatch(line); m != nil {
				if m[1] != "" {
					current = append(current, m[1])
				} else if m[2] != "" && !strings.HasPrefix(trimmed, "CREATE") {
					current = append(current, m[2])
				}
			}
		}
	}
	return blocks
}

func TestColumnOrderIdenticalAcrossYears(t *testing.T) {
	gen := NewGenerator(loadStore(t, generatorDoc))

	sql, _, err := gen.Generate(testView)
	require.NoError(t, err)

	blocks := aliasLists(t, sql)
	require.Len(t, blocks, 2)
	assert.Equal(t, blocks[0], blocks[1])
	assert.Equal(t,
		[]string{"fips", "election_year", "state", "county", "state_abbr", "county_name", "a", "b"},
		blocks[0])
}

func TestSelectListNullFallback(t *testing.T) {
	store := loadStore(t, generatorDoc)
	section := store.Section("x_mappings")

	cols2016 := SelectList(section, "2016")
	assert.Contains(t, cols2016, "NULL AS b")
	assert.Contains(t, cols2016, "col_a AS a")

	// A field absent from the year map behaves the same as the sentinel.
	colsMissing := SelectList(section, "2020")
	assert.Contains(t, colsMissing, "NULL AS a")
	assert.Contains(t, colsMissing, "NULL AS b")
}

func TestSelectListDeduplicatesBaseFields(t *testing.T) {
	store := loadStore(t, generatorDoc)
	cols := SelectList(store.Section("x_mappings"), "2016")

	seen := map[string]int{}
	for _, c := range cols {
		seen[c]++
	}
	assert.Equal(t, 1, seen["fips"])
	assert.Equal(t, 1, seen["state"])
	assert.Equal(t, 1, seen["county"])
}

func TestGenerateSkipsEmptyYearWithWarning(t *testing.T) {
	doc := generatorDoc + `
y_mappings:
  standard_fields: [a]
  2020:
    a: col_a
  2022: {}
`
	gen := NewGenerator(loadStore(t, doc))
	cfg := testView
	cfg.MappingKey = "y_mappings"

	sql, warnings, err := gen.Generate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "2022")
	assert.NotContains(t, sql, "'2022'")
	assert.Contains(t, sql, "'2020'")
}

func TestGenerateFailsWhenNoBlocks(t *testing.T) {
	doc := `
global:
  project_id: p
  analytics_dataset: d
empty_mappings:
  standard_fields: [a]
`
	gen := NewGenerator(loadStore(t, doc))
	cfg := testView
	cfg.MappingKey = "empty_mappings"

	_, _, err := gen.Generate(cfg)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGenerationFailed, apperrors.GetErrorCode(err))
}

func TestGenerateMissingSection(t *testing.T) {
	gen := NewGenerator(loadStore(t, generatorDoc))
	cfg := testView
	cfg.MappingKey = "nope_mappings"

	_, _, err := gen.Generate(cfg)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMappingMissing, apperrors.GetErrorCode(err))
}

func TestSourceTable(t *testing.T) {
	assert.Equal(t, "p.eavs_2024.eavs_county_24_a_reg", SourceTable("p", "2024", "a_reg"))
}

func TestViewByName(t *testing.T) {
	v, ok := ViewByName("registration")
	require.True(t, ok)
	assert.Equal(t, "eavs_county_reg_union", v.ViewName)

	v, ok = ViewByName("eavs_county_mail_union")
	require.True(t, ok)
	assert.Equal(t, "mail", v.Name)

	_, ok = ViewByName("unknown")
	assert.False(t, ok)
}
