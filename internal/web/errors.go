package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details and the request ID (server-side)
//   - Returned to clients as a user-friendly message with an action and code
//   - Rendered as JSON for API routes and as an HTML alert for pages

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tablesift/internal/core"
	"github.com/JonMunkholm/tablesift/internal/dedup"
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/ingest"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/table"
	"github.com/JonMunkholm/tablesift/internal/web/views"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errBadRequest  = errors.New("invalid request")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// badRequest wraps a decoding or parameter error so it maps to 400.
func badRequest(err error) error {
	return &core.UserError{
		Technical: errors.Join(errBadRequest, err),
		User: core.UserMessage{
			Message: "The request could not be read",
			Action:  "Check the request parameters and try again",
			Code:    "REQ003",
		},
	}
}

// statusFor picks the HTTP status for an error returned by the session.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ingest.ErrLoadInProgress), errors.Is(err, core.ErrNoTable):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoLoad), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, export.ErrSinkNotConfigured):
		return http.StatusNotImplemented
	}

	switch ingest.KindOf(err) {
	case ingest.KindSizeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case ingest.KindUnsupported:
		if errors.Is(err, ingest.ErrNotSpreadsheet) {
			return http.StatusBadRequest
		}
		return http.StatusUnsupportedMediaType
	case ingest.KindPermissionDenied:
		return http.StatusForbidden
	}

	for _, target := range []error{
		ingest.ErrUnknownSheet, ingest.ErrNotSpreadsheet,
		query.ErrNoTerms, query.ErrInvalidPattern,
		dedup.ErrNoColumnsSelected, dedup.ErrUnknownColumn, table.ErrUnknownColumn,
		export.ErrUnknownFormat, export.ErrInvalidTableName,
	} {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped message in the format the
// client expects.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if wantsJSON(r) {
		respondErrorJSON(w, r, err, status)
		return
	}

	msg := logError(r, err, status)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if rerr := views.Layout("Error", views.ErrorAlert(msg.Message, msg.Action, msg.Code)).Render(r.Context(), w); rerr != nil {
		slog.Error("render error page", "error", rerr)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := logError(r, err, status)
	writeJSON(w, r, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func logError(r *http.Request, err error, status int) core.UserMessage {
	msg := core.MapError(err)
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", chimw.GetReqID(r.Context()),
	)
	return msg
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(err)
	}
	return nil
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
