package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/JonMunkholm/tablesift/internal/dedup"
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/ingest"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/render"
	"github.com/JonMunkholm/tablesift/internal/table"
)

var (
	// ErrNoTable is returned by operations that need a loaded table.
	ErrNoTable = errors.New("no table loaded")

	// ErrNoLoad is returned when there is no load to cancel or watch.
	ErrNoLoad = errors.New("no load in progress")
)

// Default grid page sizes.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Options configures a Session.
type Options struct {
	Logger   *slog.Logger
	Loader   *ingest.Loader
	Engine   *query.Engine
	Render   render.Options
	Postgres *export.Postgres // nil disables FormatPostgres

	DefaultPageSize int
	MaxPageSize     int
}

// Session owns the single loaded table and every annotation derived from it.
// Each operation computes its result completely before swapping it in, so a
// failed operation leaves the previous state untouched.
type Session struct {
	log      *slog.Logger
	loader   *ingest.Loader
	engine   *query.Engine
	postgres *export.Postgres
	pageSize int
	maxPage  int

	mu         sync.RWMutex
	table      *table.Table
	path       string
	sheet      string
	sheets     []string
	cache      *render.Cache
	search     *SearchSummary
	dupColumns []string

	loadMu sync.Mutex
	load   *activeLoad
}

// NewSession returns an empty session.
func NewSession(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	loader := opts.Loader
	if loader == nil {
		loader = ingest.NewLoader(ingest.Options{Logger: log})
	}
	engine := opts.Engine
	if engine == nil {
		engine = query.NewEngine(0)
	}
	pageSize := opts.DefaultPageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPage := opts.MaxPageSize
	if maxPage <= 0 {
		maxPage = MaxPageSize
	}

	return &Session{
		log:      log,
		loader:   loader,
		engine:   engine,
		postgres: opts.Postgres,
		pageSize: pageSize,
		maxPage:  max(maxPage, pageSize),
		cache:    render.New(opts.Render),
	}
}

// Shutdown cancels any in-flight load and waits for it to stop.
func (s *Session) Shutdown(ctx context.Context) error {
	return s.loader.Shutdown(ctx)
}

// Loaded reports whether a table is loaded.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table != nil
}

// Columns returns the column names of the loaded table.
func (s *Session) Columns() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil, ErrNoTable
	}
	return s.table.Columns(), nil
}

// Sheets returns the sheet names of the loaded workbook, if any.
func (s *Session) Sheets() ([]string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil, "", ErrNoTable
	}
	return slices.Clone(s.sheets), s.sheet, nil
}

// Unload drops the table and every annotation.
func (s *Session) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table = nil
	s.path, s.sheet, s.sheets = "", "", nil
	s.cache.SetTable(nil)
	s.search = nil
	s.dupColumns = nil
	s.log.Info("table unloaded")
}

// Search filters the view to matching rows and highlights both terms.
func (s *Session) Search(ctx context.Context, spec query.Spec) (SearchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		return SearchSummary{}, ErrNoTable
	}

	res, err := s.engine.Search(ctx, s.table, spec)
	if err != nil {
		return SearchSummary{}, err
	}
	counts, err := query.CountMatches(s.table, spec)
	if err != nil {
		return SearchSummary{}, err
	}

	sum := SearchSummary{
		Spec:       spec.Normalize(),
		Matched:    res.Matched(),
		Total:      res.Total,
		Percent:    res.Percent(),
		Term1Cells: counts.Term1,
		Term2Cells: counts.Term2,
	}

	dup := s.cache.Duplicates()
	s.cache.SetView(res.Rows)
	s.cache.SetHighlights(res.Highlights)
	s.cache.SetDuplicates(dup)
	s.search = &sum

	s.log.Debug("search applied",
		"logic", spec.Logic.String(),
		"matched", sum.Matched,
		"total", sum.Total,
	)
	return sum, nil
}

// ResetSearch shows every row again and clears highlights and duplicate tagging.
func (s *Session) ResetSearch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		return ErrNoTable
	}
	s.cache.SetView(nil)
	s.cache.SetHighlights(nil)
	s.cache.SetDuplicates(nil)
	s.search = nil
	return nil
}

// FindDuplicates tags rows that share values across columns.
func (s *Session) FindDuplicates(columns []string) (DuplicateSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		return DuplicateSummary{}, ErrNoTable
	}

	res, err := dedup.Find(s.table, columns)
	if err != nil {
		return DuplicateSummary{}, err
	}
	if res.DuplicateCount() == 0 {
		// Nothing to tag; the current annotation stays as it is.
		return summarizeDuplicates(res), nil
	}

	s.cache.SetDuplicates(res)
	s.dupColumns = slices.Clone(columns)
	return summarizeDuplicates(res), nil
}

// ClearDuplicates removes duplicate tagging.
func (s *Session) ClearDuplicates() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		return ErrNoTable
	}
	s.cache.SetDuplicates(nil)
	return nil
}

func summarizeDuplicates(res *dedup.Result) DuplicateSummary {
	return DuplicateSummary{
		Columns:       slices.Clone(res.Columns),
		DuplicateRows: res.DuplicateCount(),
		Groups:        len(res.Groups),
		UniqueValues:  res.UniqueCount,
		TotalRows:     res.TotalRows,
	}
}

// Sort reorders the table by column. The view and duplicate tagging follow
// their rows; highlights are unchanged.
func (s *Session) Sort(column string, descending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		return ErrNoTable
	}
	c, ok := s.table.ColumnIndex(column)
	if !ok {
		return fmt.Errorf("sort by %q: %w", column, table.ErrUnknownColumn)
	}
	if _, err := s.cache.Sort(c, descending); err != nil {
		return fmt.Errorf("sort by %q: %w", column, err)
	}
	return nil
}

// Grid returns a window of the current view. limit <= 0 uses the default
// page size; larger limits are capped.
func (s *Session) Grid(offset, limit int) (Page, error) {
	s.mu.Lock() // the cache memoizes on read
	defer s.mu.Unlock()

	if s.table == nil {
		return Page{}, ErrNoTable
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	limit = min(limit, s.maxPage)

	total := s.cache.NumRows()
	offset = max(0, min(offset, total))
	end := min(offset+limit, total)

	page := Page{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Columns: make([]Column, s.cache.NumCols()),
		Rows:    make([]Row, 0, end-offset),
	}
	for c := range page.Columns {
		page.Columns[c] = Column{
			Index:     c,
			Label:     s.cache.ColumnLabel(c),
			Duplicate: s.cache.IsDuplicateColumn(c),
		}
	}
	for r := offset; r < end; r++ {
		row := Row{
			Label:    s.cache.RowLabel(r),
			TableRow: s.cache.TableRow(r),
			Cells:    make([]Cell, len(page.Columns)),
		}
		for c := range row.Cells {
			row.Cells[c] = Cell{Text: s.cache.CellText(r, c), Tag: s.cache.CellTag(r, c)}
		}
		page.Rows = append(page.Rows, row)
	}
	return page, nil
}

// Stats summarizes the table and its annotations.
func (s *Session) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.table == nil {
		return Stats{}, ErrNoTable
	}

	st := Stats{
		Path:              s.path,
		Sheet:             s.sheet,
		Rows:              s.table.NumRows(),
		Columns:           s.table.NumCols(),
		ViewRows:          s.cache.NumRows(),
		DuplicateSelected: slices.Clone(s.dupColumns),
	}
	if s.search != nil {
		sum := *s.search
		st.Search = &sum
	}
	if dup := s.cache.Duplicates(); dup != nil {
		sum := summarizeDuplicates(dup)
		st.Duplicates = &sum
	}
	return st, nil
}

// Project copies the selected columns of either the current view or every
// row, in display order.
func (s *Session) Project(columns []string, allRows bool) (*table.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.table == nil {
		return nil, ErrNoTable
	}
	var rows []int
	if !allRows {
		rows = s.cache.View()
	}
	return s.table.Project(columns, rows)
}

// Export writes the selection to w, or copies it into PostgreSQL for
// FormatPostgres (w is unused then).
func (s *Session) Export(ctx context.Context, w io.Writer, req ExportRequest) (ExportResult, error) {
	if req.Format == "" {
		return ExportResult{}, fmt.Errorf("%w: empty format", export.ErrUnknownFormat)
	}
	if req.Format == export.FormatPostgres && s.postgres == nil {
		return ExportResult{}, export.ErrSinkNotConfigured
	}

	ds, err := s.Project(req.Columns, req.AllRows)
	if err != nil {
		return ExportResult{}, err
	}

	res := ExportResult{Format: req.Format, Rows: len(ds.Rows), Columns: len(ds.Columns)}
	if req.Format == export.FormatPostgres {
		if _, err := s.postgres.Copy(ctx, req.Table, ds); err != nil {
			return ExportResult{}, err
		}
		res.Table = req.Table
	} else if err := export.Write(w, req.Format, ds); err != nil {
		return ExportResult{}, err
	}

	s.log.Info("export complete",
		"format", string(req.Format),
		"rows", res.Rows,
		"columns", res.Columns,
	)
	return res, nil
}
