package table

import "fmt"

// Dataset is a projected, ordered copy of part of a Table. It is the input
// contract for exporters: consumers write Columns and Rows as given and never
// re-sort or re-filter.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Project copies the named columns for the given rows, in the given order.
// A nil columns slice selects every column; a nil rows slice selects every row.
func (t *Table) Project(columns []string, rows []int) (*Dataset, error) {
	if columns == nil {
		columns = t.columns
	}
	colIdx, err := t.ColumnIndices(columns)
	if err != nil {
		return nil, err
	}

	if rows == nil {
		rows = make([]int, len(t.rows))
		for i := range rows {
			rows[i] = i
		}
	}

	out := &Dataset{
		Columns: make([]string, len(columns)),
		Rows:    make([][]string, 0, len(rows)),
	}
	copy(out.Columns, columns)

	for _, r := range rows {
		if r < 0 || r >= len(t.rows) {
			return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, r)
		}
		src := t.rows[r]
		rec := make([]string, len(colIdx))
		for i, c := range colIdx {
			rec[i] = src[c]
		}
		out.Rows = append(out.Rows, rec)
	}

	return out, nil
}
