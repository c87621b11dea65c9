package query

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablesift/internal/table"
)

func people() *table.Table {
	return table.MustNew([]string{"id", "name"}, [][]string{
		{"1", "Alice"},
		{"2", "alice"},
		{"3", "Bob"},
	})
}

func TestSearch_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []int
	}{
		{
			name: "case folded substring",
			spec: Spec{Term1: "alice", MatchCase: false},
			want: []int{0, 1},
		},
		{
			name: "case sensitive substring",
			spec: Spec{Term1: "alice", MatchCase: true},
			want: []int{1},
		},
		{
			name: "entire field match case",
			spec: Spec{Term1: "Bob", MatchCase: true, EntireField: true},
			want: []int{2},
		},
		{
			name: "entire field rejects partial",
			spec: Spec{Term1: "Bo", MatchCase: true, EntireField: true},
			want: []int{},
		},
		{
			name: "terms are trimmed",
			spec: Spec{Term1: "  bob  "},
			want: []int{2},
		},
		{
			name: "metacharacters are literal",
			spec: Spec{Term1: "a.*"},
			want: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Search(people(), tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Rows)
			assert.Equal(t, 3, res.Total)
		})
	}
}

func TestSearch_Logic(t *testing.T) {
	tbl := table.MustNew([]string{"a", "b"}, [][]string{
		{"red", "apple"},   // 0: red only
		{"green", "apple"}, // 1: green only
		{"red", "green"},   // 2: both, in different cells
		{"blue", "plum"},   // 3: neither
		{"redgreen", ""},   // 4: both in one cell
	})

	tests := []struct {
		name  string
		logic Logic
		want  []int
	}{
		{"and is row-wise", LogicAnd, []int{2, 4}},
		{"or", LogicOr, []int{0, 1, 2, 4}},
		{"not", LogicNot, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Search(tbl, Spec{Term1: "red", Term2: "green", Logic: tt.logic})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Rows)
		})
	}
}

func TestSearch_EmptyTerm(t *testing.T) {
	tbl := table.MustNew([]string{"a", "b"}, [][]string{
		{"x", ""},
		{"x", "y"},
		{"z", "y"},
	})

	t.Run("empty second term is no constraint", func(t *testing.T) {
		res, err := Search(tbl, Spec{Term1: "x", Logic: LogicAnd})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, res.Rows)
	})

	t.Run("empty first term with or keeps every row", func(t *testing.T) {
		res, err := Search(tbl, Spec{Term2: "zzz", Logic: LogicOr})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, res.Rows)
	})

	t.Run("entire field empty second term is no constraint", func(t *testing.T) {
		res, err := Search(tbl, Spec{Term1: "x", Logic: LogicAnd, EntireField: true})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, res.Rows)
	})

	t.Run("entire field empty first term with or keeps every row", func(t *testing.T) {
		res, err := Search(tbl, Spec{Term2: "y", Logic: LogicOr, EntireField: true})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, res.Rows)
	})

	t.Run("no terms", func(t *testing.T) {
		_, err := Search(tbl, Spec{Term1: "  "})
		assert.ErrorIs(t, err, ErrNoTerms)
	})
}

func TestSearch_Highlights(t *testing.T) {
	res, err := Search(people(), Spec{Term1: "ali", Term2: "bob", Logic: LogicAnd})
	require.NoError(t, err)

	// AND matches nothing, but both terms still highlight.
	assert.Empty(t, res.Rows)
	require.Equal(t, 2, res.Highlights.Len())
	assert.True(t, res.Highlights.Match("Alice"))
	assert.True(t, res.Highlights.Match("BOB"))
	assert.False(t, res.Highlights.Match("Carol"))
}

func TestSearch_HighlightsAnchored(t *testing.T) {
	res, err := Search(people(), Spec{Term1: "Bob", MatchCase: true, EntireField: true})
	require.NoError(t, err)

	assert.True(t, res.Highlights.Match("Bob"))
	assert.False(t, res.Highlights.Match("Bobby"))
	assert.False(t, res.Highlights.Match("bob"))
	assert.Equal(t, "^Bob$", res.Highlights.Patterns()[0].String())
}

func TestSearch_InvalidPattern(t *testing.T) {
	_, err := Search(people(), Spec{Term1: "\xff", MatchCase: true})

	var se *SearchError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestPattern_MatchAgreesWithExpression(t *testing.T) {
	cells := []string{"", "Bob", "bob", "Bobby", "a.b", "axb", "(x)", "Ünïcode", "line\nbreak"}
	terms := []string{"bob", "Bob", "a.b", "(x)", "ünï", "line"}

	for _, term := range terms {
		for _, anchored := range []bool{false, true} {
			for _, fold := range []bool{false, true} {
				p, err := Compile(term, anchored, fold)
				require.NoError(t, err)
				re := regexp.MustCompile(p.String())
				for _, cell := range cells {
					view := cell
					if fold {
						view = Fold(cell)
					}
					assert.Equal(t, re.MatchString(view), p.Match(cell),
						"term=%q anchored=%v fold=%v cell=%q", term, anchored, fold, cell)
				}
			}
		}
	}
}

func TestSearch_DoesNotMutateTable(t *testing.T) {
	tbl := people()
	_, err := Search(tbl, Spec{Term1: "ALICE"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", tbl.Cell(0, 1))
}

func TestSearch_Properties(t *testing.T) {
	tbl := generated(500)
	terms := [][2]string{{"1", "2"}, {"a", "7"}, {"x", ""}, {"", "3"}, {"10", "10"}}

	for _, tc := range terms {
		for _, entire := range []bool{false, true} {
			for _, matchCase := range []bool{false, true} {
				base := Spec{Term1: tc[0], Term2: tc[1], EntireField: entire, MatchCase: matchCase}
				if base.Validate() != nil {
					continue
				}
				name := fmt.Sprintf("%q/%q/entire=%v/case=%v", tc[0], tc[1], entire, matchCase)
				t.Run(name, func(t *testing.T) {
					and := mustSearch(t, tbl, withLogic(base, LogicAnd))
					or := mustSearch(t, tbl, withLogic(base, LogicOr))
					not := mustSearch(t, tbl, withLogic(base, LogicNot))

					assert.Subset(t, or.Rows, and.Rows, "AND must be a subset of OR")
					assert.Subset(t, or.Rows, not.Rows, "NOT must be a subset of OR")

					// NOT rows never contain a term2 match.
					if base.Term2 != "" || base.EntireField {
						t2 := term2Rows(t, tbl, base)
						for _, r := range not.Rows {
							assert.NotContains(t, t2, r)
						}
					} else {
						assert.Empty(t, not.Rows, "an empty term2 matches every row")
					}

					again := mustSearch(t, tbl, withLogic(base, LogicAnd))
					assert.Equal(t, and.Rows, again.Rows, "search must be idempotent")
				})
			}
		}
	}
}

func TestEngine_ShardingPreservesOrder(t *testing.T) {
	tbl := generated(1000)
	spec := Spec{Term1: "7", Logic: LogicOr}

	single, err := NewEngine(1 << 20).Search(context.Background(), tbl, spec)
	require.NoError(t, err)
	sharded, err := NewEngine(13).Search(context.Background(), tbl, spec)
	require.NoError(t, err)

	assert.Equal(t, single.Rows, sharded.Rows)
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(10).Search(ctx, generated(100), Spec{Term1: "1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountMatches(t *testing.T) {
	counts, err := CountMatches(people(), Spec{Term1: "alice", Term2: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Term1)
	assert.Equal(t, 1, counts.Term2)
	assert.Equal(t, 3, counts.Total())

	none, err := CountMatches(people(), Spec{})
	require.NoError(t, err)
	assert.Zero(t, none.Total())
}

func TestParseLogic(t *testing.T) {
	for in, want := range map[string]Logic{"": LogicAnd, "and": LogicAnd, "OR": LogicOr, " not ": LogicNot} {
		got, err := ParseLogic(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogic("XOR")
	assert.Error(t, err)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "abc", Fold("abc"))
	assert.Equal(t, "abc", Fold("ABC"))
	assert.Equal(t, "straße", Fold("STRAßE"))
}

// generated builds a deterministic table whose cells mix letters and digits.
func generated(n int) *table.Table {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("a%dX", i%37),
			fmt.Sprintf("%d", (i*7)%101),
		}
	}
	return table.MustNew([]string{"n", "tag", "mod"}, rows)
}

func withLogic(s Spec, l Logic) Spec {
	s.Logic = l
	return s
}

func mustSearch(t *testing.T, tbl *table.Table, spec Spec) *Result {
	t.Helper()
	res, err := Search(tbl, spec)
	require.NoError(t, err)
	return res
}

// term2Rows returns the rows in which some cell matches term2 alone.
func term2Rows(t *testing.T, tbl *table.Table, s Spec) []int {
	t.Helper()
	p, err := Compile(s.Term2, s.EntireField, !s.MatchCase)
	require.NoError(t, err)

	var rows []int
	for r := 0; r < tbl.NumRows(); r++ {
		for _, cell := range tbl.Row(r) {
			if p.Match(cell) {
				rows = append(rows, r)
				break
			}
		}
	}
	return rows
}
