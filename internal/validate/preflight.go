package validate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"eavsctl/internal/mapping"
)

// PreflightFile checks one source CSV against the section's year mapping
// before anything is uploaded: the file must open, carry a header and at
// least one data row, and every mapped source column should be present.
// Missing mapped columns are warnings (the generator falls back to NULL);
// an unreadable or empty file is an error.
func PreflightFile(path string, section *mapping.Section, year string) *Result {
	result := NewResult(path)

	f, err := os.Open(path)
	if err != nil {
		result.Fail("file", "cannot open: %v", err)
		return result
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		result.Fail("header", "cannot read header: %v", err)
		return result
	}
	result.Pass("header", "%d columns", len(header))

	rows := 0
	for {
		if _, err := reader.Read(); err == io.EOF {
			break
		} else if err != nil {
			result.Fail("rows", "malformed CSV at row %d: %v", rows+2, err)
			return result
		}
		rows++
	}
	if rows == 0 {
		result.Fail("rows", "no data rows")
	} else {
		result.Pass("rows", "%d data rows", rows)
	}

	checkMappedColumns(result, section, year, header)
	return result
}

// checkMappedColumns verifies every non-null mapped source column appears
// in the header.
func checkMappedColumns(result *Result, section *mapping.Section, year string, header []string) {
	if !section.HasYear(year) {
		result.Warn("mappings", "no field mappings for year %s", year)
		return
	}

	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}

	missing := 0
	for field, src := range section.YearMapping(year) {
		if src == mapping.NullField {
			continue
		}
		if !present[src] {
			result.Warn("mappings", "mapped column %q for field %s not in header", src, field)
			missing++
		}
	}
	if missing == 0 {
		result.Pass("mappings", "all mapped columns present")
	}
}

// PreflightHeader reads just the header row of a CSV.
func PreflightHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return header, nil
}
