// Package render provides the memoized display model a grid UI reads from.
//
// A Cache composes a table, the current highlight patterns and the current
// duplicate annotation into per-cell text and tags. Cell text is memoized per
// position; tags are computed on demand so memory stays proportional to the
// cells actually displayed. Any change to the table, its row order, the view,
// the highlights or the duplicate annotation clears every memo at once.
//
// A Cache is not safe for concurrent use.
package render

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/JonMunkholm/tablesift/internal/dedup"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/table"
)

// Tag classifies a cell for display.
type Tag int

const (
	TagNone Tag = iota
	TagHighlighted
	TagDuplicate
	TagBoth
)

func (t Tag) String() string {
	switch t {
	case TagHighlighted:
		return "highlighted"
	case TagDuplicate:
		return "duplicate"
	case TagBoth:
		return "both"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// DefaultMemoLimit bounds the number of memoized cell texts.
const DefaultMemoLimit = 200_000

// Options tune cell formatting.
type Options struct {
	// MaxCellWidth truncates cell text to this many display columns (0 = no limit).
	MaxCellWidth int

	// MemoLimit caps memoized cells; the memo is dropped when it fills up.
	MemoLimit int
}

type cellKey struct{ row, col int }

// Cache is the display model over one table.
type Cache struct {
	opts Options

	t        *table.Table
	revision uint64

	// view maps display rows to table rows; nil shows every row.
	view []int

	highlights *query.HighlightSet
	dupCols    map[int]bool
	dup        *dedup.Result

	text      map[cellKey]string
	colLabels map[int]string
	rowLabels map[int]string
}

// New returns an empty Cache. Call SetTable before reading cells.
func New(opts Options) *Cache {
	if opts.MemoLimit <= 0 {
		opts.MemoLimit = DefaultMemoLimit
	}
	c := &Cache{opts: opts}
	c.clear()
	return c
}

func (c *Cache) clear() {
	c.text = make(map[cellKey]string)
	c.colLabels = make(map[int]string)
	c.rowLabels = make(map[int]string)
	if c.t != nil {
		c.revision = c.t.Revision()
	}
}

// SetTable replaces the table and drops the view and every annotation.
func (c *Cache) SetTable(t *table.Table) {
	c.t = t
	c.view = nil
	c.highlights = nil
	c.dupCols = nil
	c.dup = nil
	c.clear()
}

// Table returns the current table, or nil.
func (c *Cache) Table() *table.Table { return c.t }

// SetView restricts display to the given table rows, in order. nil shows all rows.
func (c *Cache) SetView(rows []int) {
	c.view = rows
	c.clear()
}

// View returns the table rows currently displayed, or nil when all rows are shown.
func (c *Cache) View() []int { return c.view }

// SetHighlights replaces the highlight patterns.
func (c *Cache) SetHighlights(h *query.HighlightSet) {
	c.highlights = h
	c.clear()
}

// Highlights returns the current highlight patterns.
func (c *Cache) Highlights() *query.HighlightSet { return c.highlights }

// SetDuplicates replaces the duplicate annotation. nil clears it.
func (c *Cache) SetDuplicates(res *dedup.Result) {
	c.dup = res
	c.dupCols = nil
	if res != nil {
		c.dupCols = make(map[int]bool, len(res.ColumnIndices))
		for _, col := range res.ColumnIndices {
			c.dupCols[col] = true
		}
	}
	c.clear()
}

// Duplicates returns the current duplicate annotation.
func (c *Cache) Duplicates() *dedup.Result { return c.dup }

// IsDuplicateColumn reports whether col takes part in duplicate highlighting.
func (c *Cache) IsDuplicateColumn(col int) bool { return c.dupCols[col] }

// NumRows returns the number of displayed rows.
func (c *Cache) NumRows() int {
	if c.t == nil {
		return 0
	}
	if c.view != nil {
		return len(c.view)
	}
	return c.t.NumRows()
}

// NumCols returns the number of columns.
func (c *Cache) NumCols() int {
	if c.t == nil {
		return 0
	}
	return c.t.NumCols()
}

// TableRow maps a display row to its table row.
func (c *Cache) TableRow(row int) int {
	if c.view != nil {
		return c.view[row]
	}
	return row
}

// sync drops memos when the table was reordered behind the cache's back.
func (c *Cache) sync() {
	if c.t != nil && c.t.Revision() != c.revision {
		c.clear()
	}
}

// CellText returns the display text of a cell.
func (c *Cache) CellText(row, col int) string {
	c.sync()
	k := cellKey{row, col}
	if s, ok := c.text[k]; ok {
		return s
	}
	if len(c.text) >= c.opts.MemoLimit {
		c.text = make(map[cellKey]string)
	}
	s := c.format(c.t.Cell(c.TableRow(row), col))
	c.text[k] = s
	return s
}

// CellTag classifies a cell against the current highlights and duplicates.
// Every cell of a duplicate column is tagged, whichever row it is in.
func (c *Cache) CellTag(row, col int) Tag {
	hl := c.highlights.Match(c.t.Cell(c.TableRow(row), col))
	dup := c.dupCols[col]

	switch {
	case hl && dup:
		return TagBoth
	case hl:
		return TagHighlighted
	case dup:
		return TagDuplicate
	default:
		return TagNone
	}
}

// ColumnLabel returns the header label for col.
func (c *Cache) ColumnLabel(col int) string {
	c.sync()
	if s, ok := c.colLabels[col]; ok {
		return s
	}
	s := c.t.Column(col)
	c.colLabels[col] = s
	return s
}

// RowLabel returns the header label for a display row.
func (c *Cache) RowLabel(row int) string {
	c.sync()
	if s, ok := c.rowLabels[row]; ok {
		return s
	}
	s := strconv.Itoa(row)
	c.rowLabels[row] = s
	return s
}

// Sort reorders the table by col and remaps the view and duplicate rows so
// they keep referring to the same logical rows. Highlights are unaffected.
func (c *Cache) Sort(col int, descending bool) (table.Permutation, error) {
	perm, err := c.t.Sort(col, descending)
	if err != nil {
		return nil, err
	}
	if c.view != nil {
		c.view = perm.Remap(c.view)
	}
	if c.dup != nil {
		c.dup = c.dup.Remap(perm)
	}
	c.clear()
	return perm, nil
}

// MemoSize returns the number of memoized cell texts.
func (c *Cache) MemoSize() int { return len(c.text) }

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

func (c *Cache) format(v string) string {
	s := flatten.Replace(v)
	if c.opts.MaxCellWidth > 0 && runewidth.StringWidth(s) > c.opts.MaxCellWidth {
		s = runewidth.Truncate(s, c.opts.MaxCellWidth, "…")
	}
	return s
}
