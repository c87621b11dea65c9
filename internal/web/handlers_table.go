package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tablesift/internal/logging"
	"github.com/JonMunkholm/tablesift/internal/query"
)

type sortRequest struct {
	Column string `json:"column"`
	Dir    string `json:"dir"`
}

type duplicatesRequest struct {
	Columns []string `json:"columns"`
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, badRequest(fmt.Errorf("%s must be a non-negative integer, got %q", name, val))
	}
	return i, nil
}

// parseList splits a comma-separated query parameter, dropping empty items.
// An absent parameter yields nil.
func parseList(r *http.Request, name string) []string {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// handleColumns returns the column names.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.session.Columns()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"columns": cols})
}

// handleGrid returns one page of the current view.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, r, http.StatusOK, page)
}

// handleStats returns the statistics panel.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.Stats()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleSort reorders the table by one column.
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var desc bool
	switch strings.ToLower(req.Dir) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		s.respondError(w, r, badRequest(fmt.Errorf("dir must be asc or desc, got %q", req.Dir)))
		return
	}

	if err := s.session.Sort(req.Column, desc); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch applies a search and returns its summary.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var spec query.Spec
	if err := decodeJSON(w, r, &spec); err != nil {
		s.respondError(w, r, err)
		return
	}

	sum, err := s.session.Search(r.Context(), spec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Debug("search",
		"logic", sum.Spec.Logic.String(),
		"matched", sum.Matched,
	)
	writeJSON(w, r, http.StatusOK, sum)
}

// handleResetSearch clears the search, highlights and duplicate tagging.
func (s *Server) handleResetSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ResetSearch(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicates tags rows that repeat across the requested columns.
func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	var req duplicatesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	sum, err := s.session.FindDuplicates(req.Columns)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// handleClearDuplicates removes duplicate tagging.
func (s *Server) handleClearDuplicates(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearDuplicates(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
