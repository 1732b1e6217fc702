// Package views generates and incrementally patches the longitudinal union
// views that stack one normalized row-set per survey year. Generation is a
// pure function of the mapping document; patching works on a structured
// model of the view text rather than pattern matching, so a new year is a
// list append followed by re-serialization.
package views

import (
	"fmt"
	"strings"

	"eavsctl/internal/mapping"
	apperrors "eavsctl/pkg/errors"
)

// baseFields lead every year block in fixed order so UNION ALL arms align
// regardless of what a year's mapping covers.
var baseFields = []string{"fips", "election_year", "state", "county", "state_abbr", "county_name"}

// ViewConfig binds one union view to its mapping block and source tables.
type ViewConfig struct {
	Name            string // human-readable section name
	MappingKey      string // mapping document block, e.g. registration_mappings
	SectionTableKey string // source table suffix, e.g. a_reg
	CTEPrefix       string // per-year block prefix, e.g. reg -> reg_2024
	ViewName        string // warehouse view name
	OutputFile      string // file under generated/
}

// DefaultViews lists the union views the pipeline maintains.
var DefaultViews = []ViewConfig{
	{
		Name:            "registration",
		MappingKey:      "registration_mappings",
		SectionTableKey: "a_reg",
		CTEPrefix:       "reg",
		ViewName:        "eavs_county_reg_union",
		OutputFile:      "registration_union.sql",
	},
	{
		Name:            "uocava",
		MappingKey:      "uocava_mappings",
		SectionTableKey: "b_uocava",
		CTEPrefix:       "uocava",
		ViewName:        "eavs_county_uocava_union",
		OutputFile:      "uocava_union.sql",
	},
	{
		Name:            "mail",
		MappingKey:      "mail_mappings",
		SectionTableKey: "c_mail",
		CTEPrefix:       "mail",
		ViewName:        "eavs_county_mail_union",
		OutputFile:      "mail_union.sql",
	},
	{
		Name:            "participation",
		MappingKey:      "participation_mappings",
		SectionTableKey: "f1_participation",
		CTEPrefix:       "part",
		ViewName:        "eavs_county_part_union",
		OutputFile:      "participation_union.sql",
	},
}

// ViewByName returns the configured view whose section name matches.
func ViewByName(name string) (ViewConfig, bool) {
	for _, v := range DefaultViews {
		if v.Name == name || v.ViewName == name {
			return v, true
		}
	}
	return ViewConfig{}, false
}

// Generator renders complete union view definitions from the mapping
// document.
type Generator struct {
	Store *mapping.Store
}

// NewGenerator returns a Generator over the loaded mapping document.
func NewGenerator(store *mapping.Store) *Generator {
	return &Generator{Store: store}
}

// SelectList builds the ordered column expressions for one year of a
// section: the fixed leading projection, then every standard field in
// declared order, mapped to its source expression or NULL. Base-field
// names that also appear in standard_fields are emitted once.
func SelectList(section *mapping.Section, year string) []string {
	base := make(map[string]bool, len(baseFields))
	cols := make([]string, 0, len(baseFields)+len(section.StandardFields))

	for _, f := range baseFields {
		base[f] = true
		if f == "election_year" {
			cols = append(cols, fmt.Sprintf("'%s' AS election_year", year))
		} else {
			cols = append(cols, f)
		}
	}

	yearMap := section.YearMapping(year)
	for _, field := range section.StandardFields {
		if base[field] {
			continue
		}
		if src := yearMap[field]; src != mapping.NullField {
			cols = append(cols, fmt.Sprintf("%s AS %s", src, field))
		} else {
			cols = append(cols, fmt.Sprintf("NULL AS %s", field))
		}
	}

	return cols
}

// SourceTable returns the fully qualified per-year source table:
// <project>.eavs_<year>.eavs_county_<2-digit-year>_<section_table_key>.
func SourceTable(project, year, sectionTableKey string) string {
	return fmt.Sprintf("%s.eavs_%s.eavs_county_%s_%s", project, year, year[2:], sectionTableKey)
}

// yearBlock renders one SELECT block for a year.
func yearBlock(section *mapping.Section, cfg ViewConfig, project, year string) string {
	var b strings.Builder
	b.WriteString("SELECT\n")
	cols := SelectList(section, year)
	for i, col := range cols {
		b.WriteString("    " + col)
		if i < len(cols)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("FROM " + SourceTable(project, year, cfg.SectionTableKey))
	return b.String()
}

// Generate renders the complete CREATE OR REPLACE VIEW statement for one
// configured view. Years with no field mappings are skipped and returned
// as warnings; a view with no year blocks at all is an error, since an
// empty view must never be deployed.
func (g *Generator) Generate(cfg ViewConfig) (string, []string, error) {
	section := g.Store.Section(cfg.MappingKey)
	if !g.Store.HasSection(cfg.MappingKey) {
		return "", nil, apperrors.New(apperrors.ErrCodeMappingMissing,
			fmt.Sprintf("mapping block %q not found", cfg.MappingKey))
	}

	var warnings []string
	var blocks []string
	for _, year := range section.Years() {
		if len(section.YearMapping(year)) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("%s: year %s has no field mappings, skipped", cfg.MappingKey, year))
			continue
		}
		blocks = append(blocks, yearBlock(section, cfg, g.Store.Global.ProjectID, year))
	}

	if len(blocks) == 0 {
		return "", warnings, apperrors.New(apperrors.ErrCodeGenerationFailed,
			fmt.Sprintf("no year blocks could be generated for view %s", cfg.ViewName)).
			WithContext("mapping_key", cfg.MappingKey).
			WithSuggestions("Check the mapping document has at least one populated year for this section")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s.%s AS\n",
		g.Store.Global.ProjectID, g.Store.Global.AnalyticsDataset, cfg.ViewName))
	b.WriteString(strings.Join(blocks, "\n\nUNION ALL\n\n"))
	b.WriteString(";\n")

	return b.String(), warnings, nil
}
