package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tablesift/internal/table"
)

// DefaultShardSize is the number of rows scanned per worker.
const DefaultShardSize = 16384

// Result is the outcome of a search.
type Result struct {
	// Rows holds matching row indices in table order.
	Rows []int

	// Highlights marks matching cells for display.
	Highlights *HighlightSet

	// Total is the number of rows searched.
	Total int
}

// Matched returns the number of matching rows.
func (r *Result) Matched() int { return len(r.Rows) }

// Percent returns matched rows as a percentage of all rows.
func (r *Result) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Rows)) * 100 / float64(r.Total)
}

// Engine runs searches, splitting large tables into parallel row shards.
// The zero value is usable.
type Engine struct {
	ShardSize int
}

// NewEngine returns an Engine with the given shard size (DefaultShardSize if <= 0).
func NewEngine(shardSize int) *Engine {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return &Engine{ShardSize: shardSize}
}

// Search runs spec against t with a default engine.
func Search(t *table.Table, spec Spec) (*Result, error) {
	return NewEngine(0).Search(context.Background(), t, spec)
}

// term is the per-row test for one search slot.
type term struct {
	pattern *Pattern
	// an empty slot places no constraint on the row, anchored or not.
	any bool
}

func newTerm(s string, spec Spec) (term, error) {
	if s == "" {
		return term{any: true}, nil
	}
	p, err := Compile(s, spec.EntireField, !spec.MatchCase)
	if err != nil {
		return term{}, err
	}
	return term{pattern: p}, nil
}

// Search evaluates spec against every row of t. The table is not modified.
func (e *Engine) Search(ctx context.Context, t *table.Table, spec Spec) (*Result, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	t1, err := newTerm(spec.Term1, spec)
	if err != nil {
		return nil, err
	}
	t2, err := newTerm(spec.Term2, spec)
	if err != nil {
		return nil, err
	}

	highlights, err := NewHighlightSet(spec)
	if err != nil {
		return nil, err
	}

	n := t.NumRows()
	matched := make([]bool, n)

	shard := e.ShardSize
	if shard <= 0 {
		shard = DefaultShardSize
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += shard {
		lo, hi := start, min(start+shard, n)
		g.Go(func() error {
			scratch := make([]string, t.NumCols())
			for r := lo; r < hi; r++ {
				if (r-lo)%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				matched[r] = evalRow(t.Row(r), scratch, t1, t2, spec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	rows := make([]int, 0)
	for r, ok := range matched {
		if ok {
			rows = append(rows, r)
		}
	}

	return &Result{
		Rows:       rows,
		Highlights: highlights,
		Total:      n,
	}, nil
}

// evalRow applies the row-wise combination. scratch receives the folded view
// of the row when case is ignored.
func evalRow(row, scratch []string, t1, t2 term, spec Spec) bool {
	fold := !spec.MatchCase
	view := row
	if fold {
		for i, cell := range row {
			scratch[i] = Fold(cell)
		}
		view = scratch
	}

	has1 := rowHas(view, t1)
	switch spec.Logic {
	case LogicAnd:
		return has1 && rowHas(view, t2)
	case LogicOr:
		return has1 || rowHas(view, t2)
	case LogicNot:
		return has1 && !rowHas(view, t2)
	default:
		return false
	}
}

// rowHas reports whether any cell of the (already folded) row satisfies t.
func rowHas(view []string, t term) bool {
	if t.any {
		return len(view) > 0
	}
	for _, cell := range view {
		if t.pattern.MatchFolded(cell) {
			return true
		}
	}
	return false
}
