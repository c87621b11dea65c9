package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablesift/internal/config"
	"github.com/JonMunkholm/tablesift/internal/core"
	"github.com/JonMunkholm/tablesift/internal/ingest"
)

const peopleCSV = "id,name\n1,Alice\n2,alice\n3,Bob\n"

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: 10 * time.Second, EnableCSP: true},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *core.Session) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := core.NewSession(core.Options{
		Logger: log,
		Loader: ingest.NewLoader(ingest.Options{Logger: log}),
	})
	srv := NewServer(sess, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, sess
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func loadedServer(t *testing.T) (*Server, *core.Session) {
	t.Helper()
	srv, sess := newTestServer(t, testConfig())

	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(peopleCSV), 0o644))

	body, err := json.Marshal(loadRequest{Path: path})
	require.NoError(t, err)
	rec := do(t, srv, http.MethodPost, "/api/load", string(body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := sess.WaitLoad(ctx)
	require.NoError(t, err)
	require.Equal(t, core.PhaseComplete, st.Phase, st.Error)
	return srv, sess
}

func TestAPI_NoTable(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LOAD003", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodGet, "/api/load", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LOAD005", decode[ErrorResponse](t, rec).Code)
}

func TestAPI_LoadValidation(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed body", `{`, http.StatusBadRequest, "REQ003"},
		{"missing path", `{}`, http.StatusBadRequest, "REQ003"},
		{"missing file", `{"path":"/does/not/exist.csv"}`, http.StatusNotFound, "FILE004"},
		{"unsupported extension", `{"path":"/tmp/file.pdf"}`, http.StatusUnsupportedMediaType, "FILE007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/load", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAPI_SearchAndGrid(t *testing.T) {
	srv, _ := loadedServer(t)

	rec := do(t, srv, http.MethodPost, "/api/search", `{"term1":"alice","logic":"AND"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[core.SearchSummary](t, rec)
	assert.Equal(t, 2, sum.Matched)
	assert.Equal(t, 3, sum.Total)

	rec = do(t, srv, http.MethodGet, "/api/grid?offset=0&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total int `json:"total"`
		Rows  []struct {
			Label string `json:"label"`
			Cells []struct {
				Text string `json:"text"`
				Tag  string `json:"tag"`
			} `json:"cells"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "Alice", page.Rows[0].Cells[1].Text)
	assert.Equal(t, "highlighted", page.Rows[0].Cells[1].Tag)

	rec = do(t, srv, http.MethodPost, "/api/search", `{"term1":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SRCH001", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/api/search", `{"term1":"a","logic":"XOR"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/grid?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/search/reset", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/stats", "")
	stats := decode[core.Stats](t, rec)
	assert.Equal(t, 3, stats.ViewRows)
	assert.Nil(t, stats.Search)
}

func TestAPI_DuplicatesAndSort(t *testing.T) {
	srv, _ := loadedServer(t)

	rec := do(t, srv, http.MethodPost, "/api/duplicates", `{"columns":["id"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[core.DuplicateSummary](t, rec).DuplicateRows)

	rec = do(t, srv, http.MethodPost, "/api/duplicates", `{"columns":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUP001", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/api/duplicates", `{"columns":["nope"]}`)
	assert.Equal(t, "DUP002", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodDelete, "/api/duplicates", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/sort", `{"column":"id","dir":"desc"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodGet, "/api/grid", "")
	assert.Contains(t, rec.Body.String(), `"label":"0","tableRow":0,"cells":[{"text":"3"`)

	rec = do(t, srv, http.MethodPost, "/api/sort", `{"column":"id","dir":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/sort", `{"column":"nope"}`)
	assert.Equal(t, "COL001", decode[ErrorResponse](t, rec).Code)
}

func TestAPI_Export(t *testing.T) {
	srv, _ := loadedServer(t)

	rec := do(t, srv, http.MethodGet, "/api/export?format=csv&columns=name&rows=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "name\nAlice\nalice\nBob\n", rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="people-export.csv"`)

	rec = do(t, srv, http.MethodGet, "/api/export?format=json&columns=id", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"1"},{"id":"2"},{"id":"3"}]`, rec.Body.String())

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantErr  string
	}{
		{"unknown format", "/api/export?format=pdf", http.StatusBadRequest, "EXP001"},
		{"bad rows", "/api/export?format=csv&rows=some", http.StatusBadRequest, "REQ003"},
		{"unknown column", "/api/export?format=csv&columns=nope", http.StatusBadRequest, "COL001"},
		{"postgres unset", "/api/export?format=postgres&table=t", http.StatusNotImplemented, "EXP002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAPI_LoadEvents(t *testing.T) {
	srv, _ := loadedServer(t)

	rec := do(t, srv, http.MethodGet, "/api/load/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "id: 100\nevent: loaded\n")
	assert.Contains(t, rec.Body.String(), `"phase":"complete"`)
}

func TestAPI_SheetsAndUnload(t *testing.T) {
	srv, _ := loadedServer(t)

	rec := do(t, srv, http.MethodGet, "/api/sheets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sheets":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/sheets", `{"sheet":"Sheet1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "LOAD004", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/api/unload", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/columns", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPage(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No table loaded")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	srv, _ = loadedServer(t)
	do(t, srv, http.MethodPost, "/api/search", `{"term1":"bob"}`)
	rec = do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<td class="highlighted">Bob</td>`)
	assert.Contains(t, body, "people.csv")
	assert.NotContains(t, body, "<td>Alice</td>")

	rec = do(t, srv, http.MethodGet, "/?offset=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "REQ003")
}

func TestPage_EscapesCells(t *testing.T) {
	srv, sess := newTestServer(t, testConfig())
	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("h\n<script>alert(1)</script>\n"), 0o644))
	_, err := sess.StartLoad(context.Background(), path, "")
	require.NoError(t, err)
	_, err = sess.WaitLoad(context.Background())
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/", "")
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret"}
	srv, _ := newTestServer(t, cfg)

	rec := do(t, srv, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code, "authorised requests reach the handler")
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "limits are per client")

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.allow("a"), "a new window refills the bucket")
}

func TestRateLimiter_Middleware(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, LoadLimit: 1}
	srv, _ := newTestServer(t, cfg)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodGet, "/api/stats", "").Code)

	rec := do(t, srv, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}
