package query

import "github.com/JonMunkholm/tablesift/internal/table"

// TermCounts holds the number of cells matching each term.
type TermCounts struct {
	Term1 int `json:"term1"`
	Term2 int `json:"term2"`
}

// Total returns the combined cell count.
func (c TermCounts) Total() int { return c.Term1 + c.Term2 }

// CountMatches counts, over the whole table, the cells each non-empty term
// matches under the search's case and entire-field options. Empty terms count 0.
func CountMatches(t *table.Table, spec Spec) (TermCounts, error) {
	spec = spec.Normalize()

	var pats [2]*Pattern
	for i, s := range []string{spec.Term1, spec.Term2} {
		if s == "" {
			continue
		}
		p, err := Compile(s, spec.EntireField, !spec.MatchCase)
		if err != nil {
			return TermCounts{}, err
		}
		pats[i] = p
	}
	if pats[0] == nil && pats[1] == nil {
		return TermCounts{}, nil
	}

	var counts TermCounts
	for r := 0; r < t.NumRows(); r++ {
		for _, cell := range t.Row(r) {
			if !spec.MatchCase {
				cell = Fold(cell)
			}
			if pats[0] != nil && pats[0].MatchFolded(cell) {
				counts.Term1++
			}
			if pats[1] != nil && pats[1].MatchFolded(cell) {
				counts.Term2++
			}
		}
	}
	return counts, nil
}
