// Package query evaluates two-term boolean searches against a table.
//
// A search combines two literal terms with AND, OR or NOT. Each term is tested
// against every cell, either as a substring or, in entire-field mode, as an
// exact match. Terms are never interpreted as patterns. The combination is
// row-wise: AND keeps a row when term1 appears in some cell and term2 appears
// in some (possibly different) cell.
//
// Search produces the matching rows in table order and a HighlightSet that
// marks matching cells for display independently of the combination logic.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// Logic selects how the two terms are combined per row.
type Logic int

const (
	LogicAnd Logic = iota
	LogicOr
	LogicNot
)

// String returns the upper-case name used by the UI.
func (l Logic) String() string {
	switch l {
	case LogicAnd:
		return "AND"
	case LogicOr:
		return "OR"
	case LogicNot:
		return "NOT"
	default:
		return fmt.Sprintf("Logic(%d)", int(l))
	}
}

// ParseLogic parses AND, OR or NOT (case-insensitive). Empty defaults to AND.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND":
		return LogicAnd, nil
	case "OR":
		return LogicOr, nil
	case "NOT":
		return LogicNot, nil
	default:
		return 0, fmt.Errorf("invalid logic %q: want AND, OR or NOT", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Logic) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Logic) UnmarshalText(b []byte) error {
	v, err := ParseLogic(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Spec describes one search invocation.
type Spec struct {
	Term1       string `json:"term1"`
	Term2       string `json:"term2"`
	Logic       Logic  `json:"logic"`
	MatchCase   bool   `json:"matchCase"`
	EntireField bool   `json:"entireField"`
}

// Normalize returns a copy with surrounding whitespace trimmed from both terms.
func (s Spec) Normalize() Spec {
	s.Term1 = strings.TrimSpace(s.Term1)
	s.Term2 = strings.TrimSpace(s.Term2)
	return s
}

// Validate reports ErrNoTerms when both terms are empty.
func (s Spec) Validate() error {
	if s.Term1 == "" && s.Term2 == "" {
		return ErrNoTerms
	}
	return nil
}

// ErrNoTerms is returned when a search has no non-empty term.
var ErrNoTerms = errors.New("at least one search term is required")

// ErrInvalidPattern is matched by every SearchError.
var ErrInvalidPattern = errors.New("invalid search pattern")

// SearchError reports a term that could not be compiled into a pattern.
type SearchError struct {
	Term string
	Err  error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("invalid search pattern for %q: %v", e.Term, e.Err)
}

// Unwrap exposes both ErrInvalidPattern and the underlying cause.
func (e *SearchError) Unwrap() []error {
	return []error{ErrInvalidPattern, e.Err}
}
