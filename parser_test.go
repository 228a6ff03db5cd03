package bsonfilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) PredicateParser {
	t.Helper()
	env, err := NewEnv()
	require.NoError(t, err)
	return NewPredicateParser(EnvParser(env))
}

func TestParse(t *testing.T) {
	x := Param{Name: "x"}
	member := func(operand Expr, names ...string) Expr {
		for _, n := range names {
			operand = Member{Operand: operand, Name: n}
		}
		return operand
	}

	tests := []struct {
		name     string
		expr     string
		locals   map[string]any
		expected Expr
	}{
		{
			name:     "comparisons",
			expr:     `x.C.E.F >= 3`,
			expected: Compare{Op: OpGreaterEqual, Left: member(x, "C", "E", "F"), Right: Constant{Value: int64(3)}},
		},
		{
			name: "conjunctions are flattened",
			expr: `x.K && x.A == "a" && x.P < 1.5`,
			expected: And{Operands: []Expr{
				member(x, "K"),
				Compare{Op: OpEqual, Left: member(x, "A"), Right: Constant{Value: "a"}},
				Compare{Op: OpLess, Left: member(x, "P"), Right: Constant{Value: 1.5}},
			}},
		},
		{
			name:     "negation",
			expr:     `!x.K`,
			expected: Not{Operand: member(x, "K")},
		},
		{
			name:     "null literals",
			expr:     `x.A == null`,
			expected: Compare{Op: OpEqual, Left: member(x, "A"), Right: Constant{Value: nil}},
		},
		{
			name:     "negative numbers",
			expr:     `x.P > -2.5`,
			expected: Compare{Op: OpGreater, Left: member(x, "P"), Right: Constant{Value: -2.5}},
		},
		{
			name: "indexing and modulo",
			expr: `x.M[1] % 2 == 0`,
			expected: Compare{
				Op:    OpEqual,
				Left:  Arithmetic{Op: OpModulo, Left: Index{Operand: member(x, "M"), Index: Constant{Value: int64(1)}}, Right: Constant{Value: int64(2)}},
				Right: Constant{Value: int64(0)},
			},
		},
		{
			name:     "size as a method",
			expr:     `x.M.size() == 3`,
			expected: Compare{Op: OpEqual, Left: Call{Method: MethodLen, Target: member(x, "M"), Args: []Expr{}}, Right: Constant{Value: int64(3)}},
		},
		{
			name:     "size as a function",
			expr:     `size(x.M) == 3`,
			expected: Compare{Op: OpEqual, Left: Call{Method: MethodLen, Target: member(x, "M"), Args: []Expr{}}, Right: Constant{Value: int64(3)}},
		},
		{
			name:     "exists without a predicate",
			expr:     `x.G.exists()`,
			expected: Call{Method: MethodAny, Target: member(x, "G")},
		},
		{
			name: "exists binds its variable within the predicate",
			expr: `x.G.exists(g, g.D == "a")`,
			expected: Call{Method: MethodAny, Target: member(x, "G"), Args: []Expr{
				Lambda{Param: "g", Body: Compare{Op: OpEqual, Left: member(Param{Name: "g"}, "D"), Right: Constant{Value: "a"}}},
			}},
		},
		{
			name: "in with a list literal",
			expr: `x.ID in [1, 2]`,
			expected: Call{
				Method: MethodContains,
				Target: LocalCollection{Values: []any{int64(1), int64(2)}},
				Args:   []Expr{member(x, "ID")},
			},
		},
		{
			name: "locals resolve to constants",
			expr: `ids.contains(x.ID)`,
			locals: map[string]any{
				"ids": []int{1, 2},
			},
			expected: Call{
				Method: MethodContains,
				Target: Constant{Value: []int{1, 2}},
				Args:   []Expr{member(x, "ID")},
			},
		},
		{
			name:   "lambda variables shadow locals",
			expr:   `x.M.exists(m, m == limit)`,
			locals: map[string]any{"m": 1, "limit": 5},
			expected: Call{Method: MethodAny, Target: member(x, "M"), Args: []Expr{
				Lambda{Param: "m", Body: Compare{Op: OpEqual, Left: Param{Name: "m"}, Right: Constant{Value: 5}}},
			}},
		},
		{
			name: "map literals are document constants",
			expr: `x.C == {"D": "a"}`,
			expected: Compare{
				Op:    OpEqual,
				Left:  member(x, "C"),
				Right: Constant{Value: map[string]any{"D": "a"}},
			},
		},
		{
			name: "string methods",
			expr: `x.A.startsWith("a", "i")`,
			expected: Call{
				Method: MethodStartsWith,
				Target: member(x, "A"),
				Args:   []Expr{Constant{Value: "a"}, Constant{Value: "i"}},
			},
		},
		{
			name: "elementAt",
			expr: `x.G.elementAt(1).D == "a"`,
			expected: Compare{
				Op:    OpEqual,
				Left:  member(Call{Method: MethodElementAt, Target: member(x, "G"), Args: []Expr{Constant{Value: int64(1)}}}, "D"),
				Right: Constant{Value: "a"},
			},
		},
	}

	p := newTestParser(t)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pred, err := p.Parse(context.Background(), Source{
				Param:  "x",
				Type:   "Root",
				Expr:   test.expr,
				Locals: test.locals,
			})
			require.NoError(t, err)
			require.Equal(t, "x", pred.Param)
			require.Equal(t, "Root", pred.Type)
			require.Equal(t, test.expected, pred.Body)
		})
	}

	t.Run("syntax errors are returned", func(t *testing.T) {
		_, err := p.Parse(context.Background(), Source{Param: "x", Expr: `x.A ==`})
		require.Error(t, err)
	})

	t.Run("predicates print readably", func(t *testing.T) {
		pred, err := p.Parse(context.Background(), Source{Param: "x", Expr: `x.G.exists(g, g.D == "a") && !(x.M[0] > 1)`})
		require.NoError(t, err)
		require.Equal(t, `x => x.G.any(g => g.D == "a") && !(x.M[0] > 1)`, pred.String())
	})
}

func TestParseLiftedLiterals(t *testing.T) {
	env, err := NewEnv()
	require.NoError(t, err)
	p := NewPredicateParser(NewCachingParser(env, nil))

	pred, err := p.Parse(context.Background(), Source{Param: "x", Expr: `x.A == "a" && x.C.D.startsWith('b')`})
	require.NoError(t, err)
	require.Equal(t, Constant{Value: "a"}, pred.Body.(And).Operands[0].(Compare).Right)
	require.Equal(t, Call{
		Method: MethodStartsWith,
		Target: Member{Operand: Member{Operand: Param{Name: "x"}, Name: "C"}, Name: "D"},
		Args:   []Expr{Constant{Value: "b"}},
	}, pred.Body.(And).Operands[1])
}
