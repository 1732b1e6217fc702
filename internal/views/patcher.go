package views

import (
	"fmt"
	"strings"
	"unicode"

	"eavsctl/internal/mapping"
	apperrors "eavsctl/pkg/errors"
)

// unionCTEName is the reserved trailing block that concatenates the
// per-year blocks.
const unionCTEName = "union_all"

// PatchStatus reports what a patch call did.
type PatchStatus int

const (
	// PatchApplied means a new year block and union arm were inserted.
	PatchApplied PatchStatus = iota
	// PatchAlreadyPresent means the view already carried the year and was
	// returned unchanged.
	PatchAlreadyPresent
)

// PatchResult describes the outcome of a successful Patch call.
type PatchResult struct {
	Status  PatchStatus
	CTEName string
}

// cteBlock is one named block in a parsed view.
type cteBlock struct {
	Name string
	Body string
}

// parsedView is the structured model of a union view: the create header,
// the ordered per-year blocks, and the ordered union arms. Insertion is a
// list append on this value, never a pattern match on text.
type parsedView struct {
	Header    string
	CTEs      []cteBlock
	UnionArms []string
}

// ParseView deserializes a union view definition previously produced by
// this package (or hand-written in the same shape). Anything that does not
// match the controlled format is rejected: patching foreign SQL by guesswork
// is how views get corrupted.
func ParseView(sql string) (*parsedView, error) {
	text := strings.TrimSpace(sql)
	text = strings.TrimSuffix(text, ";")

	withIdx := indexWord(text, "WITH")
	if withIdx < 0 {
		return nil, fmt.Errorf("no WITH clause found")
	}
	header := strings.TrimSpace(text[:withIdx])
	if !containsWord(header, "VIEW") {
		return nil, fmt.Errorf("header is not a view definition")
	}

	rest := text[withIdx+len("WITH"):]
	var blocks []cteBlock
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		name, n := scanIdentifier(rest)
		if n == 0 {
			return nil, fmt.Errorf("expected block name, got %q", truncate(rest, 20))
		}
		rest = strings.TrimLeftFunc(rest[n:], unicode.IsSpace)
		if !hasWordPrefix(rest, "AS") {
			return nil, fmt.Errorf("block %s: expected AS", name)
		}
		rest = strings.TrimLeftFunc(rest[len("AS"):], unicode.IsSpace)
		if !strings.HasPrefix(rest, "(") {
			return nil, fmt.Errorf("block %s: expected opening parenthesis", name)
		}
		body, consumed, err := scanBalanced(rest)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", name, err)
		}
		blocks = append(blocks, cteBlock{Name: name, Body: strings.TrimRight(trimBlankLines(body), " \t\n")})
		rest = strings.TrimLeftFunc(rest[consumed:], unicode.IsSpace)
		if strings.HasPrefix(rest, ",") {
			rest = rest[1:]
			continue
		}
		break
	}

	if len(blocks) < 2 || blocks[len(blocks)-1].Name != unionCTEName {
		return nil, fmt.Errorf("last block must be %s", unionCTEName)
	}
	if !isFinalSelect(rest) {
		return nil, fmt.Errorf("unexpected trailing statement %q", truncate(rest, 40))
	}

	arms, err := parseUnionArms(blocks[len(blocks)-1].Body)
	if err != nil {
		return nil, err
	}

	return &parsedView{
		Header:    header,
		CTEs:      blocks[:len(blocks)-1],
		UnionArms: arms,
	}, nil
}

// Serialize renders the structured view back to SQL text. ParseView can
// always re-read Serialize's output, which is what makes repeated patching
// safe.
func (v *parsedView) Serialize() string {
	var b strings.Builder
	b.WriteString(v.Header + "\n")
	b.WriteString("WITH ")
	for _, cte := range v.CTEs {
		b.WriteString(cte.Name + " AS (\n")
		b.WriteString(cte.Body + "\n")
		b.WriteString("),\n")
	}
	b.WriteString(unionCTEName + " AS (\n")
	for i, arm := range v.UnionArms {
		if i > 0 {
			b.WriteString("    UNION ALL\n")
		}
		b.WriteString("    SELECT * FROM " + arm + "\n")
	}
	b.WriteString(")\n")
	b.WriteString("SELECT * FROM " + unionCTEName + ";\n")
	return b.String()
}

// HasYearBlock reports whether the view already carries the named per-year
// block. This is a structural check on parsed block names, so a matching
// substring inside a comment or unrelated identifier cannot false-positive.
func (v *parsedView) HasYearBlock(name string) bool {
	for _, cte := range v.CTEs {
		if cte.Name == name {
			return true
		}
	}
	return false
}

// Patch inserts one new year into an existing union view. The returned SQL
// is either the updated definition or, on any failure, the input unchanged:
// callers never receive partially rewritten text.
func Patch(existingSQL string, store *mapping.Store, cfg ViewConfig, year string) (string, PatchResult, error) {
	norm, ok := mapping.NormalizeYear(year)
	if !ok {
		return existingSQL, PatchResult{}, apperrors.New(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid year %q", year))
	}
	year = norm
	cteName := cfg.CTEPrefix + "_" + year

	view, err := ParseView(existingSQL)
	if err != nil {
		return existingSQL, PatchResult{}, apperrors.Wrap(err, apperrors.ErrCodeUnsupportedView,
			fmt.Sprintf("view %s does not match the generated format and cannot be patched automatically", cfg.ViewName)).
			WithSuggestions(
				"Hand-edited views must be updated manually",
				"Regenerate the view from the mapping document to restore the patchable format",
			)
	}

	if view.HasYearBlock(cteName) {
		return existingSQL, PatchResult{Status: PatchAlreadyPresent, CTEName: cteName}, nil
	}

	section := store.Section(cfg.MappingKey)
	if !section.HasYear(year) || len(section.YearMapping(year)) == 0 {
		return existingSQL, PatchResult{}, apperrors.New(apperrors.ErrCodeMappingMissing,
			fmt.Sprintf("no %s mapping for year %s", cfg.MappingKey, year))
	}

	body := indent(yearBlock(section, cfg, store.Global.ProjectID, year), "    ")
	newBlock := cteBlock{Name: cteName, Body: body}

	// Insert after the highest prior year for this section, or at the end
	// of the block list when this section has no blocks yet.
	insertAt := len(view.CTEs)
	if idx := lastBlockForPrefix(view.CTEs, cfg.CTEPrefix+"_"); idx >= 0 {
		insertAt = idx + 1
	}
	view.CTEs = append(view.CTEs[:insertAt], append([]cteBlock{newBlock}, view.CTEs[insertAt:]...)...)
	view.UnionArms = append(view.UnionArms, cteName)

	return view.Serialize(), PatchResult{Status: PatchApplied, CTEName: cteName}, nil
}

// lastBlockForPrefix finds the index of the block with the given prefix and
// the highest year suffix, or -1 when the prefix is absent.
func lastBlockForPrefix(blocks []cteBlock, prefix string) int {
	best := -1
	var bestYear string
	for i, cte := range blocks {
		if !strings.HasPrefix(cte.Name, prefix) {
			continue
		}
		y, ok := mapping.NormalizeYear(strings.TrimPrefix(cte.Name, prefix))
		if !ok {
			continue
		}
		if best == -1 || y > bestYear {
			best, bestYear = i, y
		}
	}
	return best
}

// parseUnionArms reads the union_all body: SELECT * FROM <name> arms joined
// by UNION ALL, and nothing else.
func parseUnionArms(body string) ([]string, error) {
	parts := splitOnWord(body, "UNION ALL")
	var arms []string
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) != 4 ||
			!strings.EqualFold(fields[0], "SELECT") || fields[1] != "*" ||
			!strings.EqualFold(fields[2], "FROM") {
			return nil, fmt.Errorf("unrecognized union arm %q", truncate(strings.TrimSpace(part), 40))
		}
		arms = append(arms, fields[3])
	}
	if len(arms) == 0 {
		return nil, fmt.Errorf("%s block has no arms", unionCTEName)
	}
	return arms, nil
}

// isFinalSelect accepts exactly "SELECT * FROM union_all".
func isFinalSelect(s string) bool {
	fields := strings.Fields(s)
	return len(fields) == 4 &&
		strings.EqualFold(fields[0], "SELECT") && fields[1] == "*" &&
		strings.EqualFold(fields[2], "FROM") && fields[3] == unionCTEName
}

// scanBalanced consumes a parenthesized group starting at s[0] == '(' and
// returns the inner text and the total bytes consumed including both
// parentheses. Single-quoted literals are skipped so a quoted parenthesis
// cannot unbalance the scan.
func scanBalanced(s string) (string, int, error) {
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			if c == '\'' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '\'':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], i + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("unbalanced parentheses")
}

func scanIdentifier(s string) (string, int) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return s[:i], i
}

// indexWord finds the first occurrence of word in s bounded by
// non-identifier characters, case-insensitively.
func indexWord(s, word string) int {
	upper := strings.ToUpper(s)
	word = strings.ToUpper(word)
	from := 0
	for {
		i := strings.Index(upper[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		before := i == 0 || !isIdentChar(upper[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(upper) || !isIdentChar(upper[afterIdx])
		if before && after {
			return i
		}
		from = i + len(word)
	}
}

func containsWord(s, word string) bool {
	return indexWord(s, word) >= 0
}

func hasWordPrefix(s, word string) bool {
	return indexWord(s, word) == 0
}

// splitOnWord splits s on standalone occurrences of the (possibly spaced)
// keyword, case-insensitively.
func splitOnWord(s, keyword string) []string {
	var parts []string
	rest := s
	for {
		i := indexKeyword(rest, keyword)
		if i < 0 {
			parts = append(parts, rest)
			return parts
		}
		parts = append(parts, rest[:i])
		rest = rest[i+len(keyword):]
	}
}

// indexKeyword finds a multi-word keyword ("UNION ALL") with flexible
// internal whitespace collapsed to single spaces for matching.
func indexKeyword(s, keyword string) int {
	words := strings.Fields(keyword)
	upper := strings.ToUpper(s)
	from := 0
	for {
		i := strings.Index(upper[from:], strings.ToUpper(words[0]))
		if i < 0 {
			return -1
		}
		i += from
		if matchWordsAt(upper, i, words) {
			return i
		}
		from = i + 1
	}
}

// matchWordsAt checks that the keyword words appear at position i separated
// only by whitespace and bounded by non-identifier characters; it reports
// the match but callers re-derive the span from keyword length, so it is
// only used with single-space keywords in serialized text.
func matchWordsAt(upper string, i int, words []string) bool {
	if i > 0 && isIdentChar(upper[i-1]) {
		return false
	}
	pos := i
	for w, word := range words {
		if !strings.HasPrefix(upper[pos:], word) {
			return false
		}
		pos += len(word)
		if w < len(words)-1 {
			if pos >= len(upper) || upper[pos] != ' ' {
				return false
			}
			pos++
		}
	}
	return pos >= len(upper) || !isIdentChar(upper[pos])
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func trimBlankLines(s string) string {
	return strings.Trim(s, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
