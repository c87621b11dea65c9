package core

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/tablesift/internal/dedup"
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/ingest"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/render"
	"github.com/JonMunkholm/tablesift/internal/table"
)

const peopleCSV = "id,name\n1,Alice\n2,alice\n3,Bob\n"

func newSession(t *testing.T) *Session {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSession(Options{
		Logger: log,
		Loader: ingest.NewLoader(ingest.Options{Logger: log}),
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, s *Session, path, sheet string) LoadStatus {
	t.Helper()
	_, err := s.StartLoad(context.Background(), path, sheet)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := s.WaitLoad(ctx)
	require.NoError(t, err)
	return st
}

func loaded(t *testing.T, content string) *Session {
	t.Helper()
	s := newSession(t)
	st := load(t, s, writeFile(t, "people.csv", content), "")
	require.Equal(t, PhaseComplete, st.Phase, "load failed: %s", st.Error)
	return s
}

func gridTexts(t *testing.T, s *Session, col int) []string {
	t.Helper()
	page, err := s.Grid(0, 0)
	require.NoError(t, err)
	out := make([]string, len(page.Rows))
	for i, r := range page.Rows {
		out[i] = r.Cells[col].Text
	}
	return out
}

func TestSession_LoadInstallsTable(t *testing.T) {
	s := newSession(t)
	st := load(t, s, writeFile(t, "people.csv", peopleCSV), "")

	assert.Equal(t, PhaseComplete, st.Phase)
	assert.Equal(t, 100, st.Percent)
	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 2, st.Columns)

	cols, err := s.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, stats.DuplicateSelected, "first column is selected by default")
	assert.Nil(t, stats.Duplicates, "nothing is tagged until requested")
}

func TestSession_FailedLoadKeepsTable(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantCode string
	}{
		{"header only", "header.csv", "id,name\n", "FILE005"},
		{"duplicate columns", "dup.csv", "id,id\n1,2\n", "FILE006"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loaded(t, peopleCSV)
			_, err := s.Search(context.Background(), query.Spec{Term1: "bob"})
			require.NoError(t, err)

			st := load(t, s, writeFile(t, tt.file, tt.content), "")
			assert.Equal(t, PhaseFailed, st.Phase)
			assert.Equal(t, tt.wantCode, st.Code)
			assert.NotEmpty(t, st.Error)

			cols, err := s.Columns()
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name"}, cols)
			assert.Equal(t, []string{"Bob"}, gridTexts(t, s, 1), "annotations survive a failed load")
		})
	}
}

func TestSession_SearchScenario(t *testing.T) {
	s := loaded(t, peopleCSV)

	sum, err := s.Search(context.Background(), query.Spec{Term1: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Matched)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Term1Cells)

	page, err := s.Grid(0, 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "0", page.Rows[0].Label)
	assert.Equal(t, "1", page.Rows[1].Label)
	assert.Equal(t, render.TagHighlighted, page.Rows[0].Cells[1].Tag)
	assert.Equal(t, render.TagNone, page.Rows[0].Cells[0].Tag)

	sum, err = s.Search(context.Background(), query.Spec{Term1: "alice", MatchCase: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, []string{"alice"}, gridTexts(t, s, 1))
}

func TestSession_FailedSearchKeepsState(t *testing.T) {
	s := loaded(t, peopleCSV)
	_, err := s.Search(context.Background(), query.Spec{Term1: "bob"})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), query.Spec{Term1: "  "})
	require.ErrorIs(t, err, query.ErrNoTerms)
	assert.Equal(t, "SRCH001", MapError(err).Code)

	_, err = s.Search(context.Background(), query.Spec{Term1: "\xff", MatchCase: true})
	require.ErrorIs(t, err, query.ErrInvalidPattern)

	assert.Equal(t, []string{"Bob"}, gridTexts(t, s, 1))
	stats, err := s.Stats()
	require.NoError(t, err)
	require.NotNil(t, stats.Search)
	assert.Equal(t, "bob", stats.Search.Spec.Term1)
}

func TestSession_ResetSearch(t *testing.T) {
	s := loaded(t, "id,name\n1,Alice\n2,Bob\n3,Bob\n")
	_, err := s.Search(context.Background(), query.Spec{Term1: "bob"})
	require.NoError(t, err)
	sum, err := s.FindDuplicates([]string{"name"})
	require.NoError(t, err)
	require.Equal(t, 2, sum.DuplicateRows)

	require.NoError(t, s.ResetSearch())

	page, err := s.Grid(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	for _, r := range page.Rows {
		for _, c := range r.Cells {
			assert.Equal(t, render.TagNone, c.Tag)
		}
	}
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Nil(t, stats.Search)
	assert.Nil(t, stats.Duplicates)
}

func TestSession_Duplicates(t *testing.T) {
	s := loaded(t, "id,name\n1,Alice\n2,alice\n3,Alice\n")

	sum, err := s.FindDuplicates([]string{"name"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.DuplicateRows)
	assert.Equal(t, 2, sum.UniqueValues)
	assert.Equal(t, 1, sum.Groups)

	page, err := s.Grid(0, 0)
	require.NoError(t, err)
	assert.True(t, page.Columns[1].Duplicate)
	for _, row := range page.Rows {
		assert.Equal(t, render.TagDuplicate, row.Cells[1].Tag, "every cell of a duplicate column is tagged")
		assert.Equal(t, render.TagNone, row.Cells[0].Tag)
	}

	sum, err = s.FindDuplicates([]string{"id"})
	require.NoError(t, err)
	assert.Zero(t, sum.DuplicateRows)
	page, err = s.Grid(0, 0)
	require.NoError(t, err)
	assert.False(t, page.Columns[0].Duplicate, "a result without duplicates tags nothing")
	assert.True(t, page.Columns[1].Duplicate)

	_, err = s.FindDuplicates(nil)
	assert.ErrorIs(t, err, dedup.ErrNoColumnsSelected)
	_, err = s.FindDuplicates([]string{"missing"})
	assert.ErrorIs(t, err, dedup.ErrUnknownColumn)
	assert.Equal(t, "DUP002", MapError(err).Code)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.NotNil(t, stats.Duplicates)
	assert.Equal(t, []string{"name"}, stats.Duplicates.Columns, "failed requests keep the previous result")
}

func TestSession_SortKeepsViewAndTags(t *testing.T) {
	s := loaded(t, "id,name\n1,Carol\n2,alice\n3,Bob\n4,Alice\n")

	_, err := s.Search(context.Background(), query.Spec{Term1: "alice"})
	require.NoError(t, err)
	_, err = s.FindDuplicates([]string{"name"})
	require.NoError(t, err)

	require.NoError(t, s.Sort("id", true))

	assert.Equal(t, []string{"4", "2"}, gridTexts(t, s, 0), "view follows its rows in sorted order")

	page, err := s.Grid(0, 0)
	require.NoError(t, err)
	assert.Equal(t, render.TagHighlighted, page.Rows[0].Cells[1].Tag)

	err = s.Sort("missing", false)
	assert.Equal(t, "COL001", MapError(err).Code)
}

func TestSession_GridPaging(t *testing.T) {
	s := newSession(t)
	s.pageSize, s.maxPage = 2, 3
	st := load(t, s, writeFile(t, "n.csv", "n\n0\n1\n2\n3\n4\n"), "")
	require.Equal(t, PhaseComplete, st.Phase)

	page, err := s.Grid(0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, 5, page.Total)

	page, err = s.Grid(3, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Limit)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "3", page.Rows[0].Label)

	page, err = s.Grid(99, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
}

func TestSession_Export(t *testing.T) {
	s := loaded(t, peopleCSV)
	_, err := s.Search(context.Background(), query.Spec{Term1: "alice"})
	require.NoError(t, err)

	var buf bytes.Buffer
	res, err := s.Export(context.Background(), &buf, ExportRequest{
		Format:  export.FormatCSV,
		Columns: []string{"name"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "name\nAlice\nalice\n", buf.String())

	buf.Reset()
	_, err = s.Export(context.Background(), &buf, ExportRequest{Format: export.FormatCSV, AllRows: true})
	require.NoError(t, err)
	assert.Equal(t, peopleCSV, buf.String())

	_, err = s.Export(context.Background(), &buf, ExportRequest{Format: export.FormatPostgres, Table: "x"})
	assert.ErrorIs(t, err, export.ErrSinkNotConfigured)
	assert.Equal(t, "EXP002", MapError(err).Code)

	_, err = s.Export(context.Background(), &buf, ExportRequest{})
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestSession_NoTable(t *testing.T) {
	s := newSession(t)

	_, err := s.Search(context.Background(), query.Spec{Term1: "x"})
	assert.ErrorIs(t, err, ErrNoTable)
	_, err = s.FindDuplicates([]string{"a"})
	assert.ErrorIs(t, err, ErrNoTable)
	_, err = s.Grid(0, 10)
	assert.ErrorIs(t, err, ErrNoTable)
	_, err = s.Stats()
	assert.ErrorIs(t, err, ErrNoTable)
	assert.ErrorIs(t, s.Sort("a", false), ErrNoTable)
	assert.ErrorIs(t, s.ResetSearch(), ErrNoTable)
	assert.ErrorIs(t, s.CancelLoad(), ErrNoLoad)

	_, err = s.SwitchSheet(context.Background(), "Sheet1")
	assert.ErrorIs(t, err, ErrNoTable)
	assert.Equal(t, "LOAD003", MapError(err).Code)
}

func TestSession_Unload(t *testing.T) {
	s := loaded(t, peopleCSV)
	s.Unload()

	assert.False(t, s.Loaded())
	_, err := s.Columns()
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestSession_SubscribeLoad(t *testing.T) {
	s := newSession(t)
	_, _, err := s.SubscribeLoad()
	require.ErrorIs(t, err, ErrNoLoad)

	_, err = s.StartLoad(context.Background(), writeFile(t, "p.csv", peopleCSV), "")
	require.NoError(t, err)

	ch, unsubscribe, err := s.SubscribeLoad()
	require.NoError(t, err)
	defer unsubscribe()

	var last LoadStatus
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case st, ok := <-ch:
			if !ok {
				done = true
				break
			}
			assert.GreaterOrEqual(t, st.Percent, last.Percent, "progress never decreases")
			last = st
		case <-timeout:
			t.Fatal("subscription was not closed")
		}
	}
	assert.Equal(t, PhaseComplete, last.Phase)

	// A late subscriber gets the terminal snapshot and a closed channel.
	ch, _, err = s.SubscribeLoad()
	require.NoError(t, err)
	st, ok := <-ch
	require.True(t, ok)
	assert.True(t, st.Done())
	_, ok = <-ch
	assert.False(t, ok)
}

func TestSession_SwitchSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "A"))
	require.NoError(t, f.SetSheetRow("A", "A1", &[]any{"id"}))
	require.NoError(t, f.SetSheetRow("A", "A2", &[]any{"1"}))
	_, err := f.NewSheet("B")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("B", "A1", &[]any{"k", "v"}))
	require.NoError(t, f.SetSheetRow("B", "A2", &[]any{"x", "y"}))
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	s := newSession(t)
	st := load(t, s, path, "")
	require.Equal(t, PhaseComplete, st.Phase, st.Error)
	assert.Equal(t, []string{"A", "B"}, st.Sheets)

	_, err = s.SwitchSheet(context.Background(), "C")
	assert.ErrorIs(t, err, ingest.ErrUnknownSheet)

	_, err = s.SwitchSheet(context.Background(), "B")
	require.NoError(t, err)
	st, err = s.WaitLoad(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseComplete, st.Phase, st.Error)

	sheets, current, err := s.Sheets()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, sheets, "switching keeps the sheet list")
	assert.Equal(t, "B", current)

	cols, err := s.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v"}, cols)
}

func TestSession_SwitchSheetOnDelimitedFile(t *testing.T) {
	s := loaded(t, peopleCSV)
	_, err := s.SwitchSheet(context.Background(), "Sheet1")
	assert.ErrorIs(t, err, ingest.ErrNotSpreadsheet)
}

func TestSession_CancelBeatsInstall(t *testing.T) {
	s := loaded(t, peopleCSV)
	late := ingest.Loaded{Table: table.MustNew([]string{"x"}, [][]string{{"1"}}), Path: "late.csv"}

	t.Run("cancel acknowledged before the table arrives", func(t *testing.T) {
		a := newActiveLoad(&ingest.Load{ID: "cancelled", Path: "late.csv"})
		require.True(t, a.requestCancel())

		s.finishLoad(a, late, nil)

		assert.Equal(t, PhaseCancelled, a.snapshot().Phase)
		cols, err := s.Columns()
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, cols, "the previous table stays")
	})

	t.Run("table installed before the cancel", func(t *testing.T) {
		a := newActiveLoad(&ingest.Load{ID: "installed", Path: "late.csv"})
		s.loadMu.Lock()
		s.load = a
		s.loadMu.Unlock()

		s.finishLoad(a, late, nil)

		assert.ErrorIs(t, s.CancelLoad(), ErrNoLoad)
		assert.False(t, a.requestCancel())
		assert.Equal(t, PhaseComplete, a.snapshot().Phase)
		cols, err := s.Columns()
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, cols)
	})
}
