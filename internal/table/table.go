// Package table provides the in-memory tabular value store shared by the
// ingestion pipeline and the query, duplicate and render engines.
//
// A Table is a rectangular grid of string cells with ordered, uniquely named
// columns. Every cell is a plain string: ingestion normalizes all values to
// text so downstream engines never compare heterogeneous types.
//
// Tables are immutable except for Sort, which reorders rows in place. Callers
// that hold row indices across a Sort remap them with the returned Permutation.
package table

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateColumns is returned when two columns share a name.
	ErrDuplicateColumns = errors.New("duplicate column names")

	// ErrRaggedRow is returned when a row's width differs from the header.
	ErrRaggedRow = errors.New("row width does not match column count")

	// ErrUnknownColumn is returned when a column name is not in the table.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrColumnOutOfRange is returned for a column index outside the table.
	ErrColumnOutOfRange = errors.New("column index out of range")

	// ErrRowOutOfRange is returned for a row index outside the table.
	ErrRowOutOfRange = errors.New("row index out of range")
)

// Table is a rectangular grid of string cells with named columns.
type Table struct {
	id       uuid.UUID
	revision atomic.Uint64

	columns []string
	index   map[string]int
	rows    [][]string
}

// New builds a Table from a header and its rows.
// The rows slice is adopted, not copied; callers must not modify it afterwards.
func New(columns []string, rows [][]string) (*Table, error) {
	if dup := FirstDuplicate(columns); dup != "" {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateColumns, dup)
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedRow, i, len(row), len(columns))
		}
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}

	if rows == nil {
		rows = [][]string{}
	}

	return &Table{
		id:      uuid.New(),
		columns: cols,
		index:   index,
		rows:    rows,
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(columns []string, rows [][]string) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// FirstDuplicate returns the first column name that appears more than once,
// or "" if all names are unique.
func FirstDuplicate(columns []string) string {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return c
		}
		seen[c] = struct{}{}
	}
	return ""
}

// ID returns the identity assigned when the table was constructed.
func (t *Table) ID() uuid.UUID { return t.id }

// Revision increments on every Sort. Together with ID it identifies the
// current row order.
func (t *Table) Revision() uint64 { return t.revision.Load() }

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.columns) }

// Columns returns a copy of the ordered column names.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column returns the name of column c.
func (t *Table) Column(c int) string { return t.columns[c] }

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// ColumnIndices resolves names to positions, preserving the given order.
func (t *Table) ColumnIndices(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx, ok := t.index[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, n)
		}
		out[i] = idx
	}
	return out, nil
}

// Cell returns the value at row r, column c.
func (t *Table) Cell(r, c int) string { return t.rows[r][c] }

// Row returns row r. The slice is shared with the table and must not be modified.
func (t *Table) Row(r int) []string { return t.rows[r] }

// Permutation records a reorder: after a Sort, new row i was old row Perm[i].
type Permutation []int

// Inverse returns the mapping from old row index to new row index.
func (p Permutation) Inverse() []int {
	inv := make([]int, len(p))
	for newIdx, oldIdx := range p {
		inv[oldIdx] = newIdx
	}
	return inv
}

// Remap translates old row indices to their positions after the reorder and
// returns them in ascending order of the new position.
func (p Permutation) Remap(oldRows []int) []int {
	if oldRows == nil {
		return nil
	}
	inv := p.Inverse()
	out := make([]int, len(oldRows))
	for i, r := range oldRows {
		out[i] = inv[r]
	}
	sort.Ints(out)
	return out
}

// Sort stably reorders rows by the values in column c. Empty values sort last
// in both directions. It returns the permutation that was applied.
func (t *Table) Sort(c int, descending bool) (Permutation, error) {
	if c < 0 || c >= len(t.columns) {
		return nil, fmt.Errorf("%w: %d", ErrColumnOutOfRange, c)
	}

	perm := make(Permutation, len(t.rows))
	for i := range perm {
		perm[i] = i
	}

	sort.SliceStable(perm, func(i, j int) bool {
		a, b := t.rows[perm[i]][c], t.rows[perm[j]][c]
		switch {
		case a == "" && b == "":
			return false
		case a == "":
			return false
		case b == "":
			return true
		case descending:
			return a > b
		default:
			return a < b
		}
	})

	sorted := make([][]string, len(t.rows))
	for newIdx, oldIdx := range perm {
		sorted[newIdx] = t.rows[oldIdx]
	}
	t.rows = sorted
	t.revision.Add(1)

	return perm, nil
}
