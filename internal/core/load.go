package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/JonMunkholm/tablesift/internal/ingest"
)

// LoadPhase indicates the current stage of a load.
type LoadPhase string

const (
	PhaseReading   LoadPhase = "reading"
	PhaseComplete  LoadPhase = "complete"
	PhaseFailed    LoadPhase = "failed"
	PhaseCancelled LoadPhase = "cancelled"
)

// LoadStatus is a snapshot of the most recent load.
type LoadStatus struct {
	LoadID  string    `json:"loadId"`
	Path    string    `json:"path"`
	Sheet   string    `json:"sheet,omitempty"`
	Phase   LoadPhase `json:"phase"`
	Percent int       `json:"percent"`
	Sheets  []string  `json:"sheets,omitempty"`
	Rows    int       `json:"rows,omitempty"`
	Columns int       `json:"columns,omitempty"`
	Error   string    `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
	Code    string    `json:"code,omitempty"`
	Err     error     `json:"-"` // the underlying failure, for in-process callers
}

// Done reports whether the load reached a terminal phase.
func (s LoadStatus) Done() bool {
	return s.Phase == PhaseComplete || s.Phase == PhaseFailed || s.Phase == PhaseCancelled
}

// activeLoad fans one ingest.Load's events out to any number of subscribers.
type activeLoad struct {
	load *ingest.Load

	mu        sync.Mutex
	status    LoadStatus
	listeners map[chan LoadStatus]struct{}
	done      chan struct{}

	// cancelled and installing are mutually exclusive: whichever is set
	// first wins, so an acknowledged cancel never installs a table.
	cancelled  bool
	installing bool
}

func newActiveLoad(ld *ingest.Load) *activeLoad {
	return &activeLoad{
		load: ld,
		status: LoadStatus{
			LoadID: ld.ID,
			Path:   ld.Path,
			Sheet:  ld.Sheet,
			Phase:  PhaseReading,
		},
		listeners: make(map[chan LoadStatus]struct{}),
		done:      make(chan struct{}),
	}
}

// requestCancel marks the load cancelled unless it already finished or its
// table is being installed.
func (a *activeLoad) requestCancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Done() || a.installing {
		return false
	}
	a.cancelled = true
	return true
}

// claimInstall reports whether a loaded table may be installed.
func (a *activeLoad) claimInstall() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelled {
		return false
	}
	a.installing = true
	return true
}

func (a *activeLoad) snapshot() LoadStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// update applies fn to the status and notifies listeners. Slow listeners
// miss intermediate snapshots but always see the terminal one.
func (a *activeLoad) update(fn func(*LoadStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fn(&a.status)
	for ch := range a.listeners {
		if a.status.Done() {
			// Drop a stale snapshot so the terminal one fits.
			select {
			case <-ch:
			default:
			}
		}
		select {
		case ch <- a.status:
		default:
		}
	}
	if a.status.Done() {
		for ch := range a.listeners {
			close(ch)
		}
		a.listeners = nil
		close(a.done)
	}
}

func (a *activeLoad) subscribe() (<-chan LoadStatus, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan LoadStatus, 8)
	ch <- a.status
	if a.status.Done() {
		close(ch)
		return ch, func() {}
	}
	a.listeners[ch] = struct{}{}

	return ch, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := a.listeners[ch]; ok {
			delete(a.listeners, ch)
			close(ch)
		}
	}
}

// StartLoad begins loading path in the background. A non-empty sheet selects
// a workbook sheet. The current table stays in place until the load succeeds.
func (s *Session) StartLoad(ctx context.Context, path, sheet string) (LoadStatus, error) {
	var (
		ld  *ingest.Load
		err error
	)
	if sheet == "" {
		ld, err = s.loader.Start(ctx, path)
	} else {
		ld, err = s.loader.StartSheet(ctx, path, sheet)
	}
	if err != nil {
		return LoadStatus{}, err
	}

	a := newActiveLoad(ld)
	s.loadMu.Lock()
	s.load = a
	s.loadMu.Unlock()

	go s.consume(a)

	return a.snapshot(), nil
}

// SwitchSheet loads another sheet of the current workbook.
func (s *Session) SwitchSheet(ctx context.Context, sheet string) (LoadStatus, error) {
	s.mu.RLock()
	path, sheets := s.path, s.sheets
	s.mu.RUnlock()

	if path == "" {
		return LoadStatus{}, ErrNoTable
	}
	if len(sheets) == 0 {
		return LoadStatus{}, ingest.ErrNotSpreadsheet
	}
	if !slices.Contains(sheets, sheet) {
		return LoadStatus{}, fmt.Errorf("%w: %q", ingest.ErrUnknownSheet, sheet)
	}
	return s.StartLoad(ctx, path, sheet)
}

// CancelLoad cancels the in-flight load.
func (s *Session) CancelLoad() error {
	a := s.currentLoad()
	if a == nil || !a.requestCancel() {
		return ErrNoLoad
	}
	a.load.Cancel()
	return nil
}

// LoadStatus returns the status of the most recent load.
func (s *Session) LoadStatus() (LoadStatus, error) {
	a := s.currentLoad()
	if a == nil {
		return LoadStatus{}, ErrNoLoad
	}
	return a.snapshot(), nil
}

// SubscribeLoad returns a channel of status snapshots for the most recent
// load, starting with the current one. The channel is closed after the
// terminal snapshot or when the returned func is called.
func (s *Session) SubscribeLoad() (<-chan LoadStatus, func(), error) {
	a := s.currentLoad()
	if a == nil {
		return nil, nil, ErrNoLoad
	}
	ch, unsubscribe := a.subscribe()
	return ch, unsubscribe, nil
}

// WaitLoad blocks until the most recent load finishes and returns its final status.
func (s *Session) WaitLoad(ctx context.Context) (LoadStatus, error) {
	a := s.currentLoad()
	if a == nil {
		return LoadStatus{}, ErrNoLoad
	}
	select {
	case <-a.done:
		return a.snapshot(), nil
	case <-ctx.Done():
		return a.snapshot(), ctx.Err()
	}
}

func (s *Session) currentLoad() *activeLoad {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load
}

// consume is the single reader of a load's events.
func (s *Session) consume(a *activeLoad) {
	log := s.log.With("load_id", a.load.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while installing load", "panic", r)
			a.update(func(st *LoadStatus) {
				st.Phase = PhaseFailed
				st.Error = FormatUserError(fmt.Errorf("internal error: %v", r))
				st.Code = defaultMessage.Code
			})
		}
	}()

	var sheets []string
	for ev := range a.load.Events() {
		switch ev := ev.(type) {
		case ingest.Progress:
			a.update(func(st *LoadStatus) { st.Percent = ev.Percent })

		case ingest.SheetNames:
			sheets = ev.Names
			a.update(func(st *LoadStatus) { st.Sheets = ev.Names })

		case ingest.Loaded:
			s.finishLoad(a, ev, sheets)

		case ingest.Failed:
			msg := MapError(ev.Err)
			log.Warn("load failed", "error", ev.Err, "code", msg.Code)
			a.update(func(st *LoadStatus) {
				st.Phase = PhaseFailed
				st.Error = FormatUserError(ev.Err)
				st.Code = msg.Code
				st.Err = ev.Err
			})

		case ingest.Cancelled:
			a.update(func(st *LoadStatus) { st.Phase = PhaseCancelled })
		}
	}
}

// finishLoad installs the table of a finished load, or drops it when the load
// was cancelled after the reader had already finished.
func (s *Session) finishLoad(a *activeLoad, ev ingest.Loaded, sheets []string) {
	if !a.claimInstall() {
		s.log.Info("discarding table of cancelled load", "load_id", a.load.ID, "path", ev.Path)
		a.update(func(st *LoadStatus) { st.Phase = PhaseCancelled })
		return
	}
	s.install(ev, sheets)
	a.update(func(st *LoadStatus) {
		st.Phase = PhaseComplete
		st.Percent = 100
		st.Sheet = ev.Sheet
		st.Rows = ev.Table.NumRows()
		st.Columns = ev.Table.NumCols()
	})
}

// install swaps in a freshly loaded table. A sheet switch keeps the
// workbook's sheet list.
func (s *Session) install(ev ingest.Loaded, sheets []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sheets == nil && ev.Sheet != "" && ev.Path == s.path {
		sheets = s.sheets
	}

	s.table = ev.Table
	s.path = ev.Path
	s.sheet = ev.Sheet
	s.sheets = sheets
	s.cache.SetTable(ev.Table)
	s.search = nil
	s.dupColumns = nil
	if ev.Table.NumCols() > 0 {
		s.dupColumns = []string{ev.Table.Column(0)}
	}

	s.log.Info("table installed",
		slog.String("path", ev.Path),
		slog.String("sheet", ev.Sheet),
		slog.Int("rows", ev.Table.NumRows()),
		slog.Int("columns", ev.Table.NumCols()),
	)
}
