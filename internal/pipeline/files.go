// Package pipeline orchestrates the per-year load: source file discovery,
// object storage upload, warehouse loads, view generation/patching,
// materialization, and verification. Each step records per-item outcomes
// and keeps going; the run summary decides the exit code.
package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"eavsctl/internal/mapping"
	apperrors "eavsctl/pkg/errors"
)

// sourcePatterns maps section names to the vendor delivery layout. Folder
// and file names drift between years, so every pattern tolerates wildcards;
// {yy} is replaced with the 2-digit year.
var sourcePatterns = map[string]string{
	"registration":  "Section A*Registration*/EAVS_county_{yy}_*REG*.csv",
	"uocava":        "Section B*UOCAVA*/EAVS_county_{yy}_*UOCAVA*.csv",
	"mail":          "Section C*Mail*/EAVS_county_{yy}_*MAIL*.csv",
	"participation": "Section F1*/EAVS_county_{yy}_*F1*.csv",
}

// FindSectionFile locates the source CSV for one section under the year's
// data directory. Multiple matches resolve to the lexicographically first
// so reruns are deterministic.
func FindSectionFile(dataDir, year, section string) (string, error) {
	pattern, ok := sourcePatterns[section]
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown section %q", section))
	}
	norm, ok := mapping.NormalizeYear(year)
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid year %q", year))
	}
	pattern = strings.ReplaceAll(pattern, "{yy}", norm[2:])

	matches, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeFileOperation,
			fmt.Sprintf("bad glob for section %s", section))
	}
	if len(matches) == 0 {
		return "", apperrors.New(apperrors.ErrCodeFileNotFound,
			fmt.Sprintf("no source file for section %s under %s", section, dataDir)).
			WithContext("pattern", pattern).
			WithSuggestions("Check the vendor folder layout matches the expected naming convention")
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Sections returns the section names with a source pattern, sorted.
func Sections() []string {
	names := make([]string, 0, len(sourcePatterns))
	for name := range sourcePatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
