// Package mapping loads and queries the field-mapping document that drives
// union view generation and load validation. The document is a single YAML
// file with one global block and one `<section>_mappings` block per survey
// section, each holding the canonical output column list and a per-year map
// from canonical field to source column.
package mapping

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	apperrors "eavsctl/pkg/errors"

	"gopkg.in/yaml.v3"
)

// NullField is the sentinel a year map uses to mark a canonical field that
// has no source column in that year. The generator emits NULL AS <field>
// for it. YAML null and the literal string "null" both normalize to this.
const NullField = ""

// Global holds the warehouse and storage coordinates shared by every
// pipeline operation.
type Global struct {
	ProjectID        string `yaml:"project_id"`
	AnalyticsDataset string `yaml:"analytics_dataset"`
	Bucket           string `yaml:"bucket"`
	Stage            string `yaml:"stage"`
	FileFormat       string `yaml:"file_format"`
}

// Section is one `<name>_mappings` block: the ordered canonical field list
// plus the per-year field maps, keyed by normalized 4-digit year.
type Section struct {
	StandardFields []string
	years          map[string]map[string]string
}

// UnmarshalYAML decodes a section block. Year keys are normalized to
// 4-digit strings at load time so callers never have to probe for the
// integer-vs-string spellings YAML allows, and null-ish values collapse
// to the NullField sentinel.
func (s *Section) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("section block must be a mapping, got %v", node.Kind)
	}

	s.years = make(map[string]map[string]string)

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		if keyNode.Value == "standard_fields" {
			if err := valNode.Decode(&s.StandardFields); err != nil {
				return fmt.Errorf("standard_fields: %w", err)
			}
			continue
		}

		year, ok := NormalizeYear(keyNode.Value)
		if !ok {
			return fmt.Errorf("invalid year key %q in section block", keyNode.Value)
		}

		fields := make(map[string]string)
		if valNode.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				fk := valNode.Content[j]
				fv := valNode.Content[j+1]
				fields[fk.Value] = normalizeFieldValue(fv)
			}
		} else if valNode.Tag != "!!null" {
			return fmt.Errorf("year %s: expected a mapping of fields", year)
		}
		s.years[year] = fields
	}

	return nil
}

// normalizeFieldValue collapses YAML null and the string "null" to the
// NullField sentinel.
func normalizeFieldValue(node *yaml.Node) string {
	if node.Tag == "!!null" {
		return NullField
	}
	if strings.EqualFold(strings.TrimSpace(node.Value), "null") {
		return NullField
	}
	return node.Value
}

// NormalizeYear canonicalizes a year key to a 4-digit string. Two-digit
// years are assumed to be in the 2000s. Returns false for anything that
// is not a 2- or 4-digit number.
func NormalizeYear(key string) (string, bool) {
	key = strings.TrimSpace(key)
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return "", false
	}
	switch len(key) {
	case 2:
		return fmt.Sprintf("20%02d", n), true
	case 4:
		return key, true
	default:
		return "", false
	}
}

// Years returns the section's years in ascending order.
func (s *Section) Years() []string {
	years := make([]string, 0, len(s.years))
	for y := range s.years {
		years = append(years, y)
	}
	sort.Strings(years)
	return years
}

// YearMapping returns the field map for one year. The year is normalized
// before lookup; a year the section does not cover yields an empty map.
func (s *Section) YearMapping(year string) map[string]string {
	if norm, ok := NormalizeYear(year); ok {
		year = norm
	}
	if m, ok := s.years[year]; ok {
		return m
	}
	return map[string]string{}
}

// HasYear reports whether the section carries a map for the year.
func (s *Section) HasYear(year string) bool {
	if norm, ok := NormalizeYear(year); ok {
		year = norm
	}
	_, ok := s.years[year]
	return ok
}

// Store is the parsed mapping document.
type Store struct {
	Global   Global
	sections map[string]*Section
}

// document mirrors the YAML layout for decoding; section blocks are
// captured generically so new sections need no code change.
type document struct {
	Global   Global               `yaml:"global"`
	Sections map[string]yaml.Node `yaml:",inline"`
}

// Load reads and parses the mapping document at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFileNotFound,
			fmt.Sprintf("failed to read mapping file: %s", path))
	}
	return Parse(data)
}

// Parse decodes a mapping document from raw YAML.
func Parse(data []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
			"failed to parse mapping document")
	}

	store := &Store{
		Global:   doc.Global,
		sections: make(map[string]*Section),
	}

	for key, node := range doc.Sections {
		if !strings.HasSuffix(key, "_mappings") {
			continue
		}
		section := &Section{}
		n := node
		if err := n.Decode(section); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("failed to parse section %q", key))
		}
		store.sections[key] = section
	}

	return store, nil
}

// Section returns the named mapping block. A missing section yields an
// empty Section rather than an error so callers can treat "not covered"
// and "covered with no years" uniformly.
func (s *Store) Section(name string) *Section {
	if sec, ok := s.sections[name]; ok {
		return sec
	}
	return &Section{years: map[string]map[string]string{}}
}

// HasSection reports whether the document carries the named block.
func (s *Store) HasSection(name string) bool {
	_, ok := s.sections[name]
	return ok
}

// SectionNames returns the mapping block names in sorted order.
func (s *Store) SectionNames() []string {
	names := make([]string, 0, len(s.sections))
	for n := range s.sections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
