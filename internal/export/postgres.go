package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tablesift/internal/table"
)

// ErrInvalidTableName is returned for an empty or unusable target table.
var ErrInvalidTableName = errors.New("invalid export table name")

// Beginner starts transactions. Satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres copies datasets into PostgreSQL tables of text columns.
type Postgres struct {
	db     Beginner
	schema string
	close  func()
}

// NewPostgres connects to url and verifies the connection.
func NewPostgres(ctx context.Context, url, schema string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to export database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping export database: %w", err)
	}
	p := NewPostgresWith(pool, schema)
	p.close = pool.Close
	return p, nil
}

// NewPostgresWith wraps an existing connection.
func NewPostgresWith(db Beginner, schema string) *Postgres {
	if schema == "" {
		schema = "public"
	}
	return &Postgres{db: db, schema: schema, close: func() {}}
}

// Close releases the connection pool if this sink owns it.
func (p *Postgres) Close() {
	if p != nil {
		p.close()
	}
}

// Copy creates name if needed and appends every row of ds using the COPY
// protocol, in one transaction. It returns the number of rows copied.
func (p *Postgres) Copy(ctx context.Context, name string, ds *table.Dataset) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidTableName
	}
	ident := pgx.Identifier{p.schema, name}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	if _, err := tx.Exec(ctx, createTableSQL(ident, ds.Columns)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", ident.Sanitize(), err)
	}

	n, err := tx.CopyFrom(ctx, ident, ds.Columns, &rowSource{rows: ds.Rows, idx: -1})
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", ident.Sanitize(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit export: %w", err)
	}
	return n, nil
}

func createTableSQL(ident pgx.Identifier, columns []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(ident.Sanitize())
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
		b.WriteString(" text")
	}
	b.WriteString(")")
	return b.String()
}

// rowSource feeds dataset rows to CopyFrom without converting them up front.
type rowSource struct {
	rows [][]string
	idx  int
}

func (s *rowSource) Next() bool {
	s.idx++
	return s.idx < len(s.rows)
}

func (s *rowSource) Values() ([]any, error) {
	row := s.rows[s.idx]
	vals := make([]any, len(row))
	for i, v := range row {
		vals[i] = v
	}
	return vals, nil
}

func (s *rowSource) Err() error { return nil }
