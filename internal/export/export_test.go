package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/tablesift/internal/table"
)

func dataset() *table.Dataset {
	return &table.Dataset{
		Columns: []string{"name", "id", "note"},
		Rows: [][]string{
			{"Alice", "1", "says \"hi\""},
			{"Bob", "2", "a,b"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"csv", FormatCSV},
		{" JSON ", FormatJSON},
		{"xlsx", FormatXLSX},
		{"excel", FormatXLSX},
		{"postgres", FormatPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, dataset()))

	want := "name,id,note\nAlice,1,\"says \"\"hi\"\"\"\nBob,2,\"a,b\"\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON_KeepsColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, dataset()))

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "says \"hi\"", decoded[0]["note"])

	out := buf.String()
	first := bytes.Index([]byte(out), []byte(`"name"`))
	second := bytes.Index([]byte(out), []byte(`"id"`))
	third := bytes.Index([]byte(out), []byte(`"note"`))
	assert.True(t, first < second && second < third, "keys out of column order:\n%s", out)
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, &table.Dataset{Columns: []string{"a"}}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, dataset()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheet}, f.GetSheetList())
	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "id", "note"},
		{"Alice", "1", "says \"hi\""},
		{"Bob", "2", "a,b"},
	}, rows)
}

func TestWrite_PostgresIsNotStreamed(t *testing.T) {
	assert.False(t, FormatPostgres.Streams())
	err := Write(&bytes.Buffer{}, FormatPostgres, dataset())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

// fakeTx records the statements a Copy issues. Unused pgx.Tx methods panic
// through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	execs      []string
	ident      pgx.Identifier
	columns    []string
	copied     [][]any
	copyErr    error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) CopyFrom(_ context.Context, ident pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	f.ident, f.columns = ident, cols
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, vals)
	}
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	return int64(len(f.copied)), src.Err()
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeDB struct{ tx *fakeTx }

func (d fakeDB) Begin(context.Context) (pgx.Tx, error) { return d.tx, nil }

func TestPostgres_Copy(t *testing.T) {
	tx := &fakeTx{}
	p := NewPostgresWith(fakeDB{tx}, "")

	n, err := p.Copy(context.Background(), "people", dataset())
	require.NoError(t, err)

	assert.EqualValues(t, 2, n)
	assert.Equal(t, pgx.Identifier{"public", "people"}, tx.ident)
	assert.Equal(t, []string{"name", "id", "note"}, tx.columns)
	assert.Equal(t, []any{"Bob", "2", "a,b"}, tx.copied[1])
	require.Len(t, tx.execs, 1)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "public"."people" ("name" text, "id" text, "note" text)`, tx.execs[0])
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestPostgres_CopyFailureRollsBack(t *testing.T) {
	tx := &fakeTx{copyErr: errors.New("duplicate key value violates unique constraint")}
	p := NewPostgresWith(fakeDB{tx}, "staging")

	_, err := p.Copy(context.Background(), "people", dataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"staging"."people"`)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestPostgres_InvalidName(t *testing.T) {
	p := NewPostgresWith(fakeDB{&fakeTx{}}, "")
	_, err := p.Copy(context.Background(), "  ", dataset())
	assert.ErrorIs(t, err, ErrInvalidTableName)
}
