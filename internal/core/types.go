package core

import (
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/render"
)

// SearchSummary describes the active search.
type SearchSummary struct {
	Spec       query.Spec `json:"spec"`
	Matched    int        `json:"matched"`
	Total      int        `json:"total"`
	Percent    float64    `json:"percent"`
	Term1Cells int        `json:"term1Cells"`
	Term2Cells int        `json:"term2Cells"`
}

// MatchCells returns the number of cells matching either term.
func (s SearchSummary) MatchCells() int { return s.Term1Cells + s.Term2Cells }

// DuplicateSummary describes the active duplicate annotation.
type DuplicateSummary struct {
	Columns       []string `json:"columns"`
	DuplicateRows int      `json:"duplicateRows"`
	Groups        int      `json:"groups"`
	UniqueValues  int      `json:"uniqueValues"`
	TotalRows     int      `json:"totalRows"`
}

// Stats is the statistics panel for the loaded table.
type Stats struct {
	Path              string            `json:"path"`
	Sheet             string            `json:"sheet,omitempty"`
	Rows              int               `json:"rows"`
	Columns           int               `json:"columns"`
	ViewRows          int               `json:"viewRows"`
	Search            *SearchSummary    `json:"search,omitempty"`
	Duplicates        *DuplicateSummary `json:"duplicates,omitempty"`
	DuplicateSelected []string          `json:"duplicateSelected"`
}

// Column is a grid header.
type Column struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	Duplicate bool   `json:"duplicate"`
}

// Cell is one displayed cell.
type Cell struct {
	Text string     `json:"text"`
	Tag  render.Tag `json:"tag"`
}

// Row is one displayed row.
type Row struct {
	Label    string `json:"label"`
	TableRow int    `json:"tableRow"`
	Cells    []Cell `json:"cells"`
}

// Page is a window of the current view.
type Page struct {
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	Total   int      `json:"total"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ExportRequest selects what to export and where.
type ExportRequest struct {
	Format  export.Format
	Columns []string // nil exports every column
	AllRows bool     // false exports the current view
	Table   string   // target table for FormatPostgres
}

// ExportResult reports a finished export.
type ExportResult struct {
	Format  export.Format `json:"format"`
	Rows    int           `json:"rows"`
	Columns int           `json:"columns"`
	Table   string        `json:"table,omitempty"`
}
