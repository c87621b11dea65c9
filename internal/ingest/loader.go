// Package ingest loads tabular files into a table.Table in the background.
//
// A Loader runs at most one load at a time. Each Load reports on a single
// channel carrying a closed set of events: Progress, SheetNames, then exactly
// one terminal event (Loaded, Failed or Cancelled), after which the channel
// is closed. The loaded table is handed over in the Loaded event and the
// worker keeps no reference to it.
//
// Supported inputs:
//
//   - delimited text: .csv, .tsv, .txt (comma or tab, sniffed for .txt)
//   - workbooks: .xlsx, .xlsm (.xls and .xlsb are recognised but unreadable)
//   - columnar: .parquet
//
// Every cell is kept as a string. Blank lines are skipped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablesift/internal/table"
)

// DefaultChunkSize is the number of delimited rows read between progress reports.
const DefaultChunkSize = 50_000

// DefaultMaxFileSize is the default size ceiling (100MB).
const DefaultMaxFileSize int64 = 100 << 20

const eventBuffer = 32

// Event is one of Progress, SheetNames, Loaded, Failed or Cancelled.
type Event interface{ event() }

// Progress reports a non-decreasing completion percentage (0-100).
type Progress struct{ Percent int }

// SheetNames lists the sheets of a workbook. It precedes any cell data.
type SheetNames struct{ Names []string }

// Loaded is the successful terminal event.
type Loaded struct {
	Table    *table.Table
	Path     string
	Sheet    string
	Duration time.Duration
}

// Failed is the terminal event for any failure other than cancellation.
type Failed struct{ Err error }

// Cancelled is the terminal event after Load.Cancel.
type Cancelled struct{}

func (Progress) event()   {}
func (SheetNames) event() {}
func (Loaded) event()     {}
func (Failed) event()     {}
func (Cancelled) event()  {}

// Options configures a Loader.
type Options struct {
	MaxFileSize int64         // 0 = DefaultMaxFileSize, negative = unlimited
	ChunkSize   int           // 0 = DefaultChunkSize
	Timeout     time.Duration // 0 = no timeout
	Logger      *slog.Logger
}

// Loader starts loads, one at a time.
type Loader struct {
	opts Options
	log  *slog.Logger
	slot *slot

	mu      sync.Mutex
	current *Load
}

// NewLoader returns a Loader with defaults applied to opts.
func NewLoader(opts Options) *Loader {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loader{opts: opts, log: log, slot: newSlot()}
}

// Load is one running or finished load.
type Load struct {
	ID        string
	Path      string
	Sheet     string
	StartedAt time.Time

	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	lastPct int
}

func newLoad(path, sheet string, cancel context.CancelFunc) *Load {
	return &Load{
		ID:        uuid.NewString(),
		Path:      path,
		Sheet:     sheet,
		StartedAt: time.Now(),
		events:    make(chan Event, eventBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
		lastPct:   -1,
	}
}

// Events returns the event channel. It has a single consumer and is closed
// after the terminal event.
func (ld *Load) Events() <-chan Event { return ld.events }

// Cancel asks the worker to stop at its next check. It is safe to call more
// than once and after the load finished.
func (ld *Load) Cancel() { ld.cancel() }

// Done is closed when the worker has exited.
func (ld *Load) Done() <-chan struct{} { return ld.done }

// Wait consumes every event and returns the terminal outcome. A Cancelled
// outcome is returned as an *Error of KindCancelled. If ctx ends first the
// load is cancelled.
func (ld *Load) Wait(ctx context.Context) (Loaded, error) {
	for {
		select {
		case <-ctx.Done():
			ld.Cancel()
			ctx = context.Background()
		case ev, ok := <-ld.events:
			if !ok {
				return Loaded{}, newError(KindUnknown, ld.Path, errors.New("load ended without a result"))
			}
			switch ev := ev.(type) {
			case Loaded:
				return ev, nil
			case Failed:
				return Loaded{}, ev.Err
			case Cancelled:
				return Loaded{}, newError(KindCancelled, ld.Path, context.Canceled)
			}
		}
	}
}

// progress sends a Progress event if it advances the percentage. It never
// blocks and always leaves room in the buffer for the terminal event.
func (ld *Load) progress(ctx context.Context, pct int) {
	if ctx.Err() != nil || pct <= ld.lastPct {
		return
	}
	if len(ld.events) >= cap(ld.events)-2 {
		return
	}
	ld.lastPct = pct
	ld.events <- Progress{Percent: pct}
}

// Start begins loading path. Workbooks report their sheet names and load the
// first sheet.
func (l *Loader) Start(ctx context.Context, path string) (*Load, error) {
	return l.start(ctx, path, "", true)
}

// StartSheet begins loading one sheet of a workbook. No SheetNames event is sent.
func (l *Loader) StartSheet(ctx context.Context, path, sheet string) (*Load, error) {
	return l.start(ctx, path, sheet, false)
}

// Current returns the in-flight load, or nil.
func (l *Loader) Current() *Load {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Busy reports whether a load is in flight.
func (l *Loader) Busy() bool { return l.slot.busy() }

// Shutdown cancels the in-flight load and waits for its worker to exit.
func (l *Loader) Shutdown(ctx context.Context) error {
	if ld := l.Current(); ld != nil {
		ld.Cancel()
	}
	return l.slot.waitForDrain(ctx)
}

func (l *Loader) start(ctx context.Context, path, sheet string, listSheets bool) (*Load, error) {
	read, comma, err := readerFor(path)
	if err != nil {
		return nil, err
	}
	if sheet != "" && !isWorkbook(path) {
		return nil, newError(KindUnsupported, path, ErrNotSpreadsheet)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, openError(path, err)
	}
	if info.IsDir() {
		return nil, newError(KindUnknown, path, errors.New("path is a directory"))
	}
	if l.opts.MaxFileSize > 0 && info.Size() > l.opts.MaxFileSize {
		return nil, newError(KindSizeLimitExceeded, path,
			fmt.Errorf("file is %d bytes, limit is %d", info.Size(), l.opts.MaxFileSize))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	f.Close()

	if !l.slot.tryAcquire() {
		return nil, ErrLoadInProgress
	}

	base := context.WithoutCancel(ctx)
	cancelTimeout := context.CancelFunc(func() {})
	if l.opts.Timeout > 0 {
		base, cancelTimeout = context.WithTimeout(base, l.opts.Timeout)
	}
	loadCtx, cancel := context.WithCancel(base)

	ld := newLoad(path, sheet, cancel)

	j := &job{
		path:  path,
		sheet: sheet,
		comma: comma,
		chunk: l.opts.ChunkSize,
	}
	j.progress = func(pct int) { ld.progress(loadCtx, pct) }
	if listSheets {
		j.sheets = func(names []string) {
			if loadCtx.Err() == nil {
				ld.events <- SheetNames{Names: names}
			}
		}
	}

	l.mu.Lock()
	l.current = ld
	l.mu.Unlock()

	log := l.log.With("load_id", ld.ID, "path", path)
	if sheet != "" {
		log = log.With("sheet", sheet)
	}
	log.Info("load started", "size", info.Size())

	go func() {
		defer l.slot.release()
		defer cancelTimeout()
		defer cancel()
		l.run(loadCtx, ld, j, read, log)
	}()

	return ld, nil
}

func (l *Loader) run(ctx context.Context, ld *Load, j *job, read readFunc, log *slog.Logger) {
	finish := func(ev Event) {
		ld.events <- ev
		close(ld.events)

		l.mu.Lock()
		if l.current == ld {
			l.current = nil
		}
		l.mu.Unlock()
		close(ld.done)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in load", "panic", r)
			finish(Failed{Err: newError(KindUnknown, j.path, fmt.Errorf("internal error: %v", r))})
		}
	}()

	data, err := read(ctx, j)
	var tbl *table.Table
	if err == nil {
		tbl, err = data.build(j.path)
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		log.Info("load cancelled", "duration", time.Since(ld.StartedAt))
		finish(Cancelled{})

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn("load timed out", "timeout", l.opts.Timeout)
		finish(Failed{Err: newError(KindCancelled, j.path,
			fmt.Errorf("load timed out after %s: %w", l.opts.Timeout, context.DeadlineExceeded))})

	case err != nil:
		var le *Error
		if !errors.As(err, &le) {
			err = newError(KindUnknown, j.path, err)
		}
		log.Warn("load failed", "kind", KindOf(err).String(), "error", err)
		finish(Failed{Err: err})

	default:
		ld.progress(ctx, 100)
		d := time.Since(ld.StartedAt)
		log.Info("load complete", "rows", tbl.NumRows(), "columns", tbl.NumCols(), "duration", d)
		finish(Loaded{Table: tbl, Path: j.path, Sheet: data.sheet, Duration: d})
	}
}

// job is the worker's view of one load.
type job struct {
	path     string
	sheet    string
	comma    rune
	chunk    int
	progress func(pct int)
	sheets   func(names []string)
}

type readFunc func(ctx context.Context, j *job) (*sheetData, error)

// sheetData is the raw grid produced by a reader before validation.
type sheetData struct {
	sheet   string
	columns []string
	rows    [][]string
}

// widen pads short rows to the header width, naming extra columns when a
// row is wider than the header.
func (d *sheetData) widen() {
	width := len(d.columns)
	for _, r := range d.rows {
		width = max(width, len(r))
	}
	for i := len(d.columns); i < width; i++ {
		d.columns = append(d.columns, unnamed(i))
	}
	for i, r := range d.rows {
		if len(r) < width {
			d.rows[i] = append(r, make([]string, width-len(r))...)
		}
	}
}

// build validates the grid and constructs the table: an empty body fails
// first, then duplicate column names.
func (d *sheetData) build(path string) (*table.Table, error) {
	if len(d.rows) == 0 {
		return nil, newError(KindEmptyFile, path, errors.New("file has no data rows"))
	}
	if dup := table.FirstDuplicate(d.columns); dup != "" {
		return nil, newError(KindDuplicateColumns, path, fmt.Errorf("duplicate column %q", dup))
	}
	t, err := table.New(d.columns, d.rows)
	if err != nil {
		return nil, newError(KindParseError, path, err)
	}
	return t, nil
}

func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if strings.TrimSpace(c) == "" {
			c = unnamed(i)
		}
		out[i] = c
	}
	return out
}

func unnamed(i int) string { return fmt.Sprintf("Unnamed: %d", i) }

// SupportedExtensions lists the file extensions Start accepts.
var SupportedExtensions = []string{".csv", ".tsv", ".txt", ".xlsx", ".xlsm", ".xls", ".xlsb", ".parquet"}

func readerFor(path string) (readFunc, rune, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return readDelimited, ',', nil
	case ".tsv":
		return readDelimited, '\t', nil
	case ".txt":
		return readDelimited, 0, nil
	case ".xlsx", ".xlsm", ".xls", ".xlsb":
		return readWorkbook, 0, nil
	case ".parquet":
		return readParquet, 0, nil
	default:
		return nil, 0, newError(KindUnsupported, path, fmt.Errorf("unsupported file type %q", ext))
	}
}

func isWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls", ".xlsb":
		return true
	}
	return false
}

func openError(path string, err error) *Error {
	if errors.Is(err, fs.ErrPermission) {
		return newError(KindPermissionDenied, path, err)
	}
	return newError(KindUnknown, path, err)
}
