package mapping

import (
	"fmt"
	"sort"
	"strings"
)

// Suggestion is one advisory correction for a mapped source column that
// does not appear in the actual file header.
type Suggestion struct {
	Year       string
	Field      string
	Mapped     string
	Candidates []string
}

// keywordGroups relate canonical field vocabulary to the abbreviations
// survey headers actually use, so "voters_registered" can still find
// "total_reg" when neither exact nor substring matching does.
var keywordGroups = [][]string{
	{"registered", "registration", "reg"},
	{"active", "act"},
	{"inactive", "inact"},
	{"removed", "removal", "remov"},
	{"ballots", "ballot", "blt"},
	{"transmitted", "transmit", "sent"},
	{"returned", "return", "rtn"},
	{"rejected", "reject", "rej"},
	{"counted", "count", "cnt"},
	{"uocava", "military", "overseas"},
	{"provisional", "prov"},
	{"participated", "participation", "turnout", "part"},
	{"mail", "absentee", "abs"},
	{"early", "in_person", "inperson"},
}

// FindSimilar suggests header columns that plausibly correspond to the
// mapped name. Matching is tried in order of decreasing confidence:
// case-insensitive exact, substring containment either way, then shared
// keyword group. Results are sorted and deduplicated.
func FindSimilar(mapped string, header []string) []string {
	lowered := strings.ToLower(mapped)
	seen := make(map[string]bool)
	var out []string
	add := func(col string) {
		if !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}

	for _, col := range header {
		if strings.EqualFold(col, mapped) {
			add(col)
		}
	}
	for _, col := range header {
		lc := strings.ToLower(col)
		if strings.Contains(lc, lowered) || strings.Contains(lowered, lc) {
			add(col)
		}
	}
	for _, group := range keywordGroups {
		if !containsAnyKeyword(lowered, group) {
			continue
		}
		for _, col := range header {
			if containsAnyKeyword(strings.ToLower(col), group) {
				add(col)
			}
		}
	}

	sort.Strings(out)
	return out
}

func containsAnyKeyword(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ValidateAgainstHeader checks one year map of a section against the
// column header of the source file. Mapped columns absent from the
// header become suggestions; the check is advisory and never fails the
// pipeline on its own.
func (s *Section) ValidateAgainstHeader(year string, header []string) []Suggestion {
	headerSet := make(map[string]bool, len(header))
	for _, col := range header {
		headerSet[col] = true
	}

	fields := s.YearMapping(year)
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var suggestions []Suggestion
	for _, field := range names {
		mapped := fields[field]
		if mapped == NullField || headerSet[mapped] {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Year:       year,
			Field:      field,
			Mapped:     mapped,
			Candidates: FindSimilar(mapped, header),
		})
	}
	return suggestions
}

// FormatSuggestions renders suggestions as the report text written to the
// review file.
func FormatSuggestions(section string, suggestions []Suggestion) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Mapping review for %s\n", section))
	b.WriteString(strings.Repeat("-", 60) + "\n")
	if len(suggestions) == 0 {
		b.WriteString("All mapped columns were found in the source header.\n")
		return b.String()
	}
	for _, s := range suggestions {
		b.WriteString(fmt.Sprintf("[%s] %s -> %q not found in header\n", s.Year, s.Field, s.Mapped))
		if len(s.Candidates) > 0 {
			b.WriteString(fmt.Sprintf("    did you mean: %s\n", strings.Join(s.Candidates, ", ")))
		} else {
			b.WriteString("    no similar column found\n")
		}
	}
	return b.String()
}
