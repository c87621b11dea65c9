package web

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/tablesift/internal/core"
	"github.com/JonMunkholm/tablesift/internal/export"
)

// attachment defers the download headers until the first byte is written,
// so an export that fails before producing output can still send a JSON error.
type attachment struct {
	w        http.ResponseWriter
	format   export.Format
	filename string
	started  bool
}

func (a *attachment) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", a.format.ContentType())
		a.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.filename))
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

// handleExport exports the current view (rows=view, default) or every row
// (rows=all). Streamed formats download as a file; postgres copies into
// the named table and returns a summary.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var allRows bool
	switch strings.ToLower(q.Get("rows")) {
	case "", "view":
	case "all":
		allRows = true
	default:
		s.respondError(w, r, badRequest(fmt.Errorf("rows must be view or all, got %q", q.Get("rows"))))
		return
	}

	req := core.ExportRequest{
		Format:  format,
		Columns: parseList(r, "columns"),
		AllRows: allRows,
		Table:   q.Get("table"),
	}

	if !format.Streams() {
		res, err := s.session.Export(r.Context(), nil, req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
		return
	}

	out := &attachment{w: w, format: format, filename: exportName(s.session) + format.Extension()}
	if _, err := s.session.Export(r.Context(), out, req); err != nil {
		if out.started {
			// Headers are gone; all that is left is to log and cut the stream.
			logError(r, err, http.StatusInternalServerError)
			return
		}
		s.respondError(w, r, err)
	}
}

// exportName derives a download name from the loaded file.
func exportName(s *core.Session) string {
	st, err := s.Stats()
	if err != nil || st.Path == "" {
		return "export"
	}
	base := strings.TrimSuffix(filepath.Base(st.Path), filepath.Ext(st.Path))
	if st.Sheet != "" {
		base += "-" + st.Sheet
	}
	return base + "-export"
}
