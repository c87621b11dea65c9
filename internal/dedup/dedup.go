// Package dedup finds rows that share identical values across a subset of
// columns.
//
// Rows are grouped in a single pass by hashing their projection onto the
// selected columns, so the cost is O(rows × columns). Comparison is exact and
// case-sensitive: "Alice" and "alice" are different values.
package dedup

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tablesift/internal/table"
)

var (
	// ErrNoColumnsSelected is returned when no columns are given.
	ErrNoColumnsSelected = errors.New("no columns selected for duplicate detection")

	// ErrUnknownColumn is returned when a column is not part of the table.
	ErrUnknownColumn = errors.New("duplicate column not found")
)

// Result describes the duplicate groups for one column selection.
type Result struct {
	// Columns are the selected column names in selection order.
	Columns []string

	// ColumnIndices are the table positions of Columns.
	ColumnIndices []int

	// Rows holds, in ascending order, every row that shares its projection
	// with at least one other row.
	Rows []int

	// Groups lists each duplicate group (size >= 2) as ascending row indices,
	// ordered by the group's first row.
	Groups [][]int

	// UniqueCount is the number of distinct projections among all rows.
	UniqueCount int

	// TotalRows is the number of rows examined.
	TotalRows int
}

// DuplicateCount returns the number of rows that belong to a duplicate group.
func (r *Result) DuplicateCount() int { return len(r.Rows) }

// Contains reports whether row is in a duplicate group.
func (r *Result) Contains(row int) bool {
	lo, hi := 0, len(r.Rows)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case r.Rows[mid] == row:
			return true
		case r.Rows[mid] < row:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// Find groups the rows of t by their values in columns.
func Find(t *table.Table, columns []string) (*Result, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumnsSelected
	}

	idx, err := t.ColumnIndices(columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownColumn, err)
	}

	n := t.NumRows()
	groupOf := make(map[string]int, n)
	var members [][]int

	var key strings.Builder
	for r := 0; r < n; r++ {
		key.Reset()
		writeKey(&key, t.Row(r), idx)
		k := key.String()

		g, ok := groupOf[k]
		if !ok {
			g = len(members)
			groupOf[k] = g
			members = append(members, nil)
		}
		members[g] = append(members[g], r)
	}

	res := &Result{
		Columns:       append([]string(nil), columns...),
		ColumnIndices: idx,
		Rows:          []int{},
		UniqueCount:   len(members),
		TotalRows:     n,
	}

	inDup := make([]bool, n)
	for _, m := range members {
		if len(m) < 2 {
			continue
		}
		res.Groups = append(res.Groups, m)
		for _, r := range m {
			inDup[r] = true
		}
	}
	for r, ok := range inDup {
		if ok {
			res.Rows = append(res.Rows, r)
		}
	}

	return res, nil
}

// writeKey encodes the projection with length prefixes so that distinct
// tuples never produce the same key.
func writeKey(b *strings.Builder, row []string, idx []int) {
	for _, c := range idx {
		v := row[c]
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
}

// Remap returns a copy of r with row indices translated through a table
// reorder. Groups and counts are unchanged because grouping is by value.
func (r *Result) Remap(perm table.Permutation) *Result {
	inv := perm.Inverse()
	out := *r
	out.Rows = perm.Remap(r.Rows)
	out.Groups = make([][]int, len(r.Groups))
	for i, g := range r.Groups {
		ng := make([]int, len(g))
		for j, row := range g {
			ng[j] = inv[row]
		}
		out.Groups[i] = ng
	}
	sortGroups(out.Groups)
	return &out
}

func sortGroups(groups [][]int) {
	for _, g := range groups {
		slices.Sort(g)
	}
	slices.SortFunc(groups, func(a, b []int) int { return cmp.Compare(a[0], b[0]) })
}
