package web

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablesift/internal/web/views"
)

// handleIndex renders the grid page, or the load form when nothing is loaded.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.session.Loaded() {
		s.render(w, r, views.Layout("tablesift", views.Empty()))
		return
	}

	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page, err := s.session.Grid(offset, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	stats, err := s.session.Stats()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.render(w, r, views.Layout("tablesift - "+stats.Path, views.Grid(views.GridData{Page: page, Stats: stats})))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render page", "error", err, "path", r.URL.Path)
	}
}
