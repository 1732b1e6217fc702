package validate

import (
	"context"
	"fmt"
	"sort"
)

// Counter is the slice of warehouse operations the post-load checks need.
type Counter interface {
	CountRows(ctx context.Context, fqn string) (int64, error)
	CountWhere(ctx context.Context, fqn, predicate string) (int64, error)
	DuplicateKeys(ctx context.Context, fqn, keyColumn string) (map[string]int64, error)
}

// DefaultRowRange is the expected per-section county count. The survey
// covers ~3,100 county-level jurisdictions; moderate variation across
// years is normal, emptiness or wild swings are not.
var DefaultRowRange = RowRange{Min: 3000, Max: 3300}

// RowRange is an inclusive expected row-count interval.
type RowRange struct {
	Min, Max int64
}

// TableSpec describes one loaded table to verify.
type TableSpec struct {
	FQN            string
	KeyColumn      string   // unique jurisdiction key, normally fips
	CriticalFields []string // fields that must never be NULL
	NumericFields  []string // fields that should never be negative
	Range          RowRange
	PriorFQN       string // previous year's table, for drift comparison
}

// CheckTable runs the post-load verification battery against one table.
// Severity follows a fixed classification: an empty table, NULLs in
// critical fields, invalid keys, and duplicate keys are errors; an
// out-of-range row count, negative values, and year-over-year drift are
// warnings.
func CheckTable(ctx context.Context, c Counter, spec TableSpec) *Result {
	result := NewResult(spec.FQN)

	if spec.Range == (RowRange{}) {
		spec.Range = DefaultRowRange
	}

	count, err := c.CountRows(ctx, spec.FQN)
	if err != nil {
		result.Fail("row_count", "count query failed: %v", err)
		return result
	}
	switch {
	case count == 0:
		result.Fail("row_count", "table is empty")
		return result
	case count < spec.Range.Min || count > spec.Range.Max:
		result.Warn("row_count", "%d rows outside expected range [%d, %d]",
			count, spec.Range.Min, spec.Range.Max)
	default:
		result.Pass("row_count", "%d rows", count)
	}

	checkKeyColumn(ctx, c, spec, result)
	checkCriticalFields(ctx, c, spec, result)
	checkNumericFields(ctx, c, spec, result)
	checkDrift(ctx, c, spec, result, count)

	return result
}

func checkKeyColumn(ctx context.Context, c Counter, spec TableSpec, result *Result) {
	if spec.KeyColumn == "" {
		return
	}

	invalid, err := c.CountWhere(ctx, spec.FQN,
		fmt.Sprintf("%s IS NULL OR LENGTH(%s) != 5", spec.KeyColumn, spec.KeyColumn))
	if err != nil {
		result.Fail("key_format", "query failed: %v", err)
	} else if invalid > 0 {
		result.Fail("key_format", "%d rows with missing or non-5-digit %s", invalid, spec.KeyColumn)
	} else {
		result.Pass("key_format", "all %s values are 5 characters", spec.KeyColumn)
	}

	dupes, err := c.DuplicateKeys(ctx, spec.FQN, spec.KeyColumn)
	if err != nil {
		result.Fail("duplicate_keys", "query failed: %v", err)
		return
	}
	if len(dupes) == 0 {
		result.Pass("duplicate_keys", "no duplicate %s values", spec.KeyColumn)
		return
	}
	keys := make([]string, 0, len(dupes))
	for k := range dupes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Fail("duplicate_keys", "%s %q appears %d times", spec.KeyColumn, k, dupes[k])
	}
}

func checkCriticalFields(ctx context.Context, c Counter, spec TableSpec, result *Result) {
	for _, field := range spec.CriticalFields {
		nulls, err := c.CountWhere(ctx, spec.FQN, fmt.Sprintf("%s IS NULL", field))
		if err != nil {
			result.Fail("critical_"+field, "query failed: %v", err)
			continue
		}
		if nulls > 0 {
			result.Fail("critical_"+field, "%d NULL values in critical field", nulls)
		} else {
			result.Pass("critical_"+field, "no NULLs")
		}
	}
}

func checkNumericFields(ctx context.Context, c Counter, spec TableSpec, result *Result) {
	for _, field := range spec.NumericFields {
		negatives, err := c.CountWhere(ctx, spec.FQN, fmt.Sprintf("%s < 0", field))
		if err != nil {
			result.Warn("negative_"+field, "query failed: %v", err)
			continue
		}
		if negatives > 0 {
			result.Warn("negative_"+field, "%d negative values", negatives)
		} else {
			result.Pass("negative_"+field, "no negative values")
		}
	}
}

// checkDrift compares the row count against the prior year's table;
// movement beyond 10 percent either way is flagged for review.
func checkDrift(ctx context.Context, c Counter, spec TableSpec, result *Result, count int64) {
	if spec.PriorFQN == "" {
		return
	}

	prior, err := c.CountRows(ctx, spec.PriorFQN)
	if err != nil || prior == 0 {
		result.Warn("yoy_drift", "prior year count unavailable (%s)", spec.PriorFQN)
		return
	}

	drift := float64(count-prior) / float64(prior)
	if drift > 0.10 || drift < -0.10 {
		result.Warn("yoy_drift", "row count moved %+.1f%% vs %s", drift*100, spec.PriorFQN)
	} else {
		result.Pass("yoy_drift", "%+.1f%% vs prior year", drift*100)
	}
}
