package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablesift/internal/dedup"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/table"
)

func fixture() *table.Table {
	return table.MustNew([]string{"id", "name"}, [][]string{
		{"1", "Alice"},
		{"2", "Bob"},
		{"3", "Alice"},
		{"4", ""},
	})
}

func newCache(t *testing.T) *Cache {
	t.Helper()
	c := New(Options{})
	c.SetTable(fixture())
	return c
}

func TestCellText_Memoized(t *testing.T) {
	c := newCache(t)

	assert.Equal(t, "Alice", c.CellText(0, 1))
	assert.Equal(t, 1, c.MemoSize())
	assert.Equal(t, "Alice", c.CellText(0, 1))
	assert.Equal(t, 1, c.MemoSize())
}

func TestCellText_Formatting(t *testing.T) {
	c := New(Options{MaxCellWidth: 5})
	c.SetTable(table.MustNew([]string{"v"}, [][]string{{"line1\nline2"}, {"abc"}}))

	assert.Equal(t, "line…", c.CellText(0, 0))
	assert.Equal(t, "abc", c.CellText(1, 0))
}

func TestCache_InvalidatesOnAnnotationChange(t *testing.T) {
	c := newCache(t)
	c.CellText(0, 0)
	c.CellText(1, 0)
	require.Equal(t, 2, c.MemoSize())

	h, err := query.NewHighlightSet(query.Spec{Term1: "bob"})
	require.NoError(t, err)
	c.SetHighlights(h)
	assert.Zero(t, c.MemoSize())

	c.CellText(0, 0)
	c.SetDuplicates(nil)
	assert.Zero(t, c.MemoSize())

	c.CellText(0, 0)
	c.SetTable(fixture())
	assert.Zero(t, c.MemoSize())
	assert.Nil(t, c.Highlights())
}

func TestCellTag(t *testing.T) {
	c := newCache(t)
	tbl := c.Table()

	h, err := query.NewHighlightSet(query.Spec{Term1: "ali"})
	require.NoError(t, err)
	c.SetHighlights(h)

	dup, err := dedup.Find(tbl, []string{"name"})
	require.NoError(t, err)
	c.SetDuplicates(dup)

	tests := []struct {
		name     string
		row, col int
		want     Tag
	}{
		{"highlighted duplicate", 0, 1, TagBoth},
		{"duplicate not highlighted column", 0, 0, TagNone},
		{"duplicate column without a partner", 1, 1, TagDuplicate},
		{"second duplicate", 2, 1, TagBoth},
		{"empty cell in duplicate column", 3, 1, TagDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.CellTag(tt.row, tt.col))
		})
	}

	c.SetHighlights(nil)
	assert.Equal(t, TagDuplicate, c.CellTag(0, 1))
	assert.True(t, c.IsDuplicateColumn(1))
	assert.False(t, c.IsDuplicateColumn(0))

	h2, err := query.NewHighlightSet(query.Spec{Term1: "bob"})
	require.NoError(t, err)
	c.SetHighlights(h2)
	assert.Equal(t, TagBoth, c.CellTag(1, 1))
	assert.Equal(t, TagNone, c.CellTag(1, 0))

	c.SetDuplicates(nil)
	assert.Equal(t, TagHighlighted, c.CellTag(1, 1))
}

func TestView(t *testing.T) {
	c := newCache(t)
	c.SetView([]int{2, 3})

	assert.Equal(t, 2, c.NumRows())
	assert.Equal(t, 2, c.NumCols())
	assert.Equal(t, "3", c.CellText(0, 0))
	assert.Equal(t, 3, c.TableRow(1))

	c.SetView(nil)
	assert.Equal(t, 4, c.NumRows())
}

func TestLabels(t *testing.T) {
	c := newCache(t)
	assert.Equal(t, "name", c.ColumnLabel(1))
	assert.Equal(t, "0", c.RowLabel(0))
	assert.Equal(t, "3", c.RowLabel(3))
}

func TestSort_RemapsViewAndDuplicates(t *testing.T) {
	c := newCache(t)

	dup, err := dedup.Find(c.Table(), []string{"name"})
	require.NoError(t, err)
	c.SetDuplicates(dup)
	h, err := query.NewHighlightSet(query.Spec{Term1: "Bob", MatchCase: true})
	require.NoError(t, err)
	c.SetHighlights(h)

	// View: the Bob row and the empty row.
	c.SetView([]int{1, 3})
	c.CellText(0, 1)

	_, err = c.Sort(1, true) // Bob, Alice, Alice, ""
	require.NoError(t, err)

	assert.Zero(t, c.MemoSize(), "sort clears memoized text")
	assert.Same(t, h, c.Highlights(), "sort keeps highlights")

	// The view still shows Bob then the empty row, now in sorted order.
	require.Equal(t, 2, c.NumRows())
	assert.Equal(t, "Bob", c.CellText(0, 1))
	assert.Equal(t, "", c.CellText(1, 1))
	assert.Equal(t, TagBoth, c.CellTag(0, 1))
	assert.Equal(t, TagDuplicate, c.CellTag(1, 1))

	// Duplicate rows follow the Alices.
	assert.Equal(t, []int{1, 2}, c.Duplicates().Rows)
}

func TestCellText_DetectsExternalSort(t *testing.T) {
	c := newCache(t)
	assert.Equal(t, "1", c.CellText(0, 0))

	_, err := c.Table().Sort(0, true)
	require.NoError(t, err)

	assert.Equal(t, "4", c.CellText(0, 0))
}

func TestCellText_MemoLimit(t *testing.T) {
	c := New(Options{MemoLimit: 2})
	c.SetTable(fixture())

	c.CellText(0, 0)
	c.CellText(0, 1)
	c.CellText(1, 0)
	assert.LessOrEqual(t, c.MemoSize(), 2)
}

func TestTag_String(t *testing.T) {
	assert.Equal(t, "none", TagNone.String())
	assert.Equal(t, "highlighted", TagHighlighted.String())
	assert.Equal(t, "duplicate", TagDuplicate.String())
	assert.Equal(t, "both", TagBoth.String())
}
