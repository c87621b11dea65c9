package query

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// casers are stateful and must not be shared between goroutines.
var caserPool = sync.Pool{
	New: func() any {
		c := cases.Lower(language.Und)
		return &c
	},
}

// Fold returns the case-folded comparison form of s.
func Fold(s string) string {
	if !needsFold(s) {
		return s
	}
	c := caserPool.Get().(*cases.Caser)
	out := c.String(s)
	caserPool.Put(c)
	return out
}

// needsFold reports whether s contains any upper-case or non-ASCII rune.
func needsFold(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= utf8.RuneSelf {
			return true
		}
		if 'A' <= b && b <= 'Z' {
			return true
		}
	}
	return false
}

// Pattern is one compiled search term.
//
// The regular expression is compiled only to reject a term that cannot form
// a valid pattern (reported as a SearchError) and to describe the pattern
// through String. Matching uses plain string operations on the (optionally
// folded) cell, which accept exactly the inputs the expression accepts.
type Pattern struct {
	Term     string
	Anchored bool
	Fold     bool

	needle string
	re     *regexp.Regexp
}

// Compile builds a Pattern for a literal term. Metacharacters in term are
// quoted; anchored patterns only match the whole cell.
func Compile(term string, anchored, fold bool) (*Pattern, error) {
	needle := term
	if fold {
		needle = Fold(term)
	}

	src := regexp.QuoteMeta(needle)
	if anchored {
		src = "^" + src + "$"
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, &SearchError{Term: term, Err: err}
	}

	return &Pattern{
		Term:     term,
		Anchored: anchored,
		Fold:     fold,
		needle:   needle,
		re:       re,
	}, nil
}

// String returns the compiled expression source.
func (p *Pattern) String() string { return p.re.String() }

// Match tests a raw cell value.
func (p *Pattern) Match(cell string) bool {
	if p.Fold {
		cell = Fold(cell)
	}
	return p.MatchFolded(cell)
}

// MatchFolded tests a cell that has already been folded when p.Fold is set.
func (p *Pattern) MatchFolded(cell string) bool {
	if p.Anchored {
		return cell == p.needle
	}
	return strings.Contains(cell, p.needle)
}

// HighlightSet is the set of patterns used to mark cells for display.
// It is independent of the row filter: a cell is highlighted when any
// pattern matches it, whatever logic combined the terms.
type HighlightSet struct {
	patterns []*Pattern
	fold     bool
}

// NewHighlightSet compiles one pattern per non-empty term.
func NewHighlightSet(spec Spec) (*HighlightSet, error) {
	h := &HighlightSet{fold: !spec.MatchCase}
	for _, term := range []string{spec.Term1, spec.Term2} {
		if term == "" {
			continue
		}
		p, err := Compile(term, spec.EntireField, h.fold)
		if err != nil {
			return nil, err
		}
		h.patterns = append(h.patterns, p)
	}
	return h, nil
}

// Patterns returns the compiled patterns in term order.
func (h *HighlightSet) Patterns() []*Pattern {
	if h == nil {
		return nil
	}
	return h.patterns
}

// Len returns the number of patterns. A nil set has none.
func (h *HighlightSet) Len() int {
	if h == nil {
		return 0
	}
	return len(h.patterns)
}

// Match reports whether any pattern matches the cell.
func (h *HighlightSet) Match(cell string) bool {
	if h.Len() == 0 {
		return false
	}
	if h.fold {
		cell = Fold(cell)
	}
	for _, p := range h.patterns {
		if p.MatchFolded(cell) {
			return true
		}
	}
	return false
}
