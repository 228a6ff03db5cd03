package bsonfilter

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// NewEnv returns a CEL environment suitable for predicates.  Macros are
// cleared so that `list.exists(e, pred)` is kept as a call with a lambda rather
// than expanded into a comprehension.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(cel.ClearMacros())
}

// CELParser parses expression text into a CEL AST.
type CELParser interface {
	Parse(expr string) (*cel.Ast, *cel.Issues, LiftedArgs)
}

// EnvParser returns a CELParser which parses every expression with env.
func EnvParser(env *cel.Env) CELParser {
	return envParser{env: env}
}

type envParser struct {
	env *cel.Env
}

func (e envParser) Parse(expr string) (*cel.Ast, *cel.Issues, LiftedArgs) {
	ast, issues := e.env.Parse(expr)
	return ast, issues, nil
}

// PredicateParser turns CEL source text into a Predicate over a document type.
type PredicateParser interface {
	Parse(ctx context.Context, src Source) (Predicate, error)
}

// Source is predicate source text along with the names it refers to.
type Source struct {
	// Param is the name of the root document within Expr.
	Param string
	// Type is the document type of Param.
	Type string
	// Expr is the CEL expression text.
	Expr string
	// Locals holds closed-over values referenced by name within Expr.
	Locals map[string]any
}

func NewPredicateParser(p CELParser) PredicateParser {
	return &parser{cel: p}
}

type parser struct {
	cel CELParser
}

func (p *parser) Parse(ctx context.Context, src Source) (Predicate, error) {
	ast, issues, lifted := p.cel.Parse(src.Expr)
	if issues != nil && issues.Err() != nil {
		return Predicate{}, issues.Err()
	}

	w := &walker{
		root:   src.Param,
		bound:  map[string]int{},
		locals: src.Locals,
		lifted: lifted,
	}
	body, err := w.expr(ast.NativeRep().Expr())
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Param: src.Param, Type: src.Type, Body: body}, nil
}

// walker converts a CEL AST into predicate nodes.  It tracks lambda parameters
// currently in scope so that they resolve as parameters rather than locals.
type walker struct {
	root   string
	bound  map[string]int
	locals map[string]any
	lifted LiftedArgs
}

func (w *walker) expr(e celast.Expr) (Expr, error) {
	switch e.Kind() {
	case celast.LiteralKind:
		return Constant{Value: native(e.AsLiteral())}, nil

	case celast.IdentKind:
		return w.ident(e.AsIdent()), nil

	case celast.SelectKind:
		sel := e.AsSelect()
		if sel.IsTestOnly() {
			return nil, UnsupportedExpressionError{Expr: "has(" + sel.FieldName() + ")", Reason: "presence tests are not supported"}
		}
		operand := sel.Operand()
		if operand.Kind() == celast.IdentKind && operand.AsIdent() == LiftedIdent && w.lifted != nil {
			if v, ok := w.lifted.Get(sel.FieldName()); ok {
				return Constant{Value: v}, nil
			}
		}
		inner, err := w.expr(operand)
		if err != nil {
			return nil, err
		}
		return Member{Operand: inner, Name: sel.FieldName()}, nil

	case celast.ListKind:
		elems := e.AsList().Elements()
		values := make([]any, len(elems))
		for i, elem := range elems {
			v, err := w.constant(elem)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return LocalCollection{Values: values}, nil

	case celast.MapKind:
		doc := map[string]any{}
		for _, entry := range e.AsMap().Entries() {
			m := entry.AsMapEntry()
			key, err := w.constant(m.Key())
			if err != nil {
				return nil, err
			}
			str, ok := key.(string)
			if !ok {
				return nil, UnsupportedExpressionError{Expr: fmt.Sprintf("%v", key), Reason: "document keys must be strings"}
			}
			if doc[str], err = w.constant(m.Value()); err != nil {
				return nil, err
			}
		}
		return Constant{Value: doc}, nil

	case celast.CallKind:
		return w.call(e.AsCall())
	}
	return nil, UnsupportedExpressionError{Expr: fmt.Sprintf("expression kind %d", e.Kind())}
}

func (w *walker) ident(name string) Expr {
	if name == w.root || w.bound[name] > 0 {
		return Param{Name: name}
	}
	if v, ok := w.locals[name]; ok {
		return Constant{Value: v}
	}
	// Unknown identifiers are left as parameters, and fail path resolution.
	return Param{Name: name}
}

// constant converts a node that must evaluate on the client, such as a list
// element, into its value.
func (w *walker) constant(e celast.Expr) (any, error) {
	n, err := w.expr(e)
	if err != nil {
		return nil, err
	}
	switch c := n.(type) {
	case Constant:
		return c.Value, nil
	case LocalCollection:
		return c.Values, nil
	}
	return nil, UnsupportedExpressionError{Expr: n.String(), Reason: "expected a constant"}
}

var comparisons = map[string]CompareOp{
	operators.Equals:        OpEqual,
	operators.NotEquals:     OpNotEqual,
	operators.Greater:       OpGreater,
	operators.GreaterEquals: OpGreaterEqual,
	operators.Less:          OpLess,
	operators.LessEquals:    OpLessEqual,
}

// methods maps CEL function names onto the methods understood by the
// compiler.  Aliases cover the spellings used by other query languages.
var methods = map[string]Method{
	"size":       MethodLen,
	"count":      MethodLen,
	"length":     MethodLen,
	"exists":     MethodAny,
	"any":        MethodAny,
	"elementAt":  MethodElementAt,
	"contains":   MethodContains,
	"startsWith": MethodStartsWith,
	"endsWith":   MethodEndsWith,
	"matches":    MethodMatches,
	"equals":     MethodEquals,
}

func (w *walker) call(c celast.CallExpr) (Expr, error) {
	fn := c.FunctionName()

	if op, ok := comparisons[fn]; ok {
		l, r, err := w.binary(c)
		if err != nil {
			return nil, err
		}
		return Compare{Op: op, Left: l, Right: r}, nil
	}

	switch fn {
	case operators.LogicalAnd:
		l, r, err := w.binary(c)
		if err != nil {
			return nil, err
		}
		return And{Operands: append(conjuncts(l), conjuncts(r)...)}, nil

	case operators.LogicalNot:
		operand, err := w.expr(c.Args()[0])
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil

	case operators.Modulo:
		l, r, err := w.binary(c)
		if err != nil {
			return nil, err
		}
		return Arithmetic{Op: OpModulo, Left: l, Right: r}, nil

	case operators.Index:
		l, r, err := w.binary(c)
		if err != nil {
			return nil, err
		}
		return Index{Operand: l, Index: r}, nil

	case operators.In:
		// `v in coll` is coll.contains(v), whether coll is a local list or a
		// collection field.
		elem, coll, err := w.binary(c)
		if err != nil {
			return nil, err
		}
		return Call{Method: MethodContains, Target: coll, Args: []Expr{elem}}, nil

	case operators.Negate:
		operand, err := w.expr(c.Args()[0])
		if err != nil {
			return nil, err
		}
		if k, ok := operand.(Constant); ok {
			switch v := k.Value.(type) {
			case int64:
				return Constant{Value: -v}, nil
			case float64:
				return Constant{Value: -v}, nil
			}
		}
		return nil, UnsupportedExpressionError{Expr: "-" + operand.String(), Reason: "negation of a non-numeric value"}

	case operators.LogicalOr:
		return nil, UnsupportedExpressionError{Expr: fn, Reason: "disjunctions are not supported"}
	}

	method, ok := methods[fn]
	if !ok {
		return nil, UnsupportedExpressionError{Expr: fn, Reason: "unknown function"}
	}

	// Global calls such as size(x.M) or matches(x.A, "re") take their target
	// as the first argument.
	var (
		target celast.Expr
		args   = c.Args()
	)
	if c.IsMemberFunction() {
		target = c.Target()
	} else {
		if len(args) == 0 {
			return nil, UnsupportedExpressionError{Expr: fn + "()", Reason: "missing target"}
		}
		target, args = args[0], args[1:]
	}

	t, err := w.expr(target)
	if err != nil {
		return nil, err
	}

	if method == MethodAny {
		return w.existential(fn, t, args)
	}

	out := Call{Method: method, Target: t, Args: make([]Expr, len(args))}
	for i, a := range args {
		if out.Args[i], err = w.expr(a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// existential converts `coll.exists()` and `coll.exists(e, pred)`, binding e
// while the predicate is walked.
func (w *walker) existential(fn string, target Expr, args []celast.Expr) (Expr, error) {
	switch len(args) {
	case 0:
		return Call{Method: MethodAny, Target: target}, nil
	case 2:
	default:
		return nil, UnsupportedExpressionError{Expr: fn, Reason: "expected a variable and a predicate"}
	}
	if args[0].Kind() != celast.IdentKind {
		return nil, UnsupportedExpressionError{Expr: fn, Reason: "the first argument must be a variable name"}
	}

	param := args[0].AsIdent()
	w.bound[param]++
	body, err := w.expr(args[1])
	w.bound[param]--
	if err != nil {
		return nil, err
	}
	return Call{
		Method: MethodAny,
		Target: target,
		Args:   []Expr{Lambda{Param: param, Body: body}},
	}, nil
}

func (w *walker) binary(c celast.CallExpr) (Expr, Expr, error) {
	args := c.Args()
	if len(args) != 2 {
		return nil, nil, UnsupportedExpressionError{Expr: c.FunctionName(), Reason: "expected two operands"}
	}
	l, err := w.expr(args[0])
	if err != nil {
		return nil, nil, err
	}
	r, err := w.expr(args[1])
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

// conjuncts flattens nested conjunctions.
func conjuncts(e Expr) []Expr {
	if a, ok := e.(And); ok {
		return a.Operands
	}
	return []Expr{e}
}

// native converts a CEL literal into a Go value.
func native(v ref.Val) any {
	if _, ok := v.(types.Null); ok {
		return nil
	}
	return v.Value()
}
