package bsonfilter

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Compile translates a predicate into a filter document.  Sibling conjuncts on
// the same field are merged into a single operator document.
//
// Compile is a pure function of its arguments:  it performs no I/O and keeps
// no state between calls, so it may be called concurrently as long as the
// Lookup is safe for concurrent reads.
func Compile(p Predicate, lookup Lookup) (bson.D, error) {
	if lookup == nil {
		return nil, fmt.Errorf("a serializer lookup is required")
	}
	if p.Body == nil {
		return nil, UnsupportedExpressionError{Expr: p.Param + " => <nil>", Reason: "empty predicate"}
	}

	root, err := lookup.Root(p.Type)
	if err != nil {
		return nil, err
	}

	s := scope{param: p.Param, root: root}
	clauses, err := s.compile(p.Body)
	if err != nil {
		return nil, err
	}

	f, err := fold(clauses)
	if err != nil {
		return nil, err
	}
	for _, c := range f.conds {
		if c.path == "" {
			return nil, unsupported(p.Body, "the predicate must test a field of "+p.Param)
		}
	}
	return f.document(), nil
}

// compile translates a boolean expression into clauses.  Conjunctions are
// flattened;  every other boolean expression yields exactly one clause.
func (s scope) compile(e Expr) ([]clause, error) {
	switch n := e.(type) {
	case And:
		if len(n.Operands) == 0 {
			return nil, unsupported(e, "empty conjunction")
		}
		var out []clause
		for _, operand := range n.Operands {
			clauses, err := s.compile(operand)
			if err != nil {
				return nil, err
			}
			out = append(out, clauses...)
		}
		return out, nil

	case Not:
		inner, err := s.compile(n.Operand)
		if err != nil {
			return nil, err
		}
		if len(inner) != 1 {
			return nil, unsupported(e, "only single conditions may be negated")
		}
		c, err := negate(inner[0], e)
		if err != nil {
			return nil, err
		}
		return []clause{c}, nil

	case Compare:
		c, err := s.comparison(n)
		if err != nil {
			return nil, err
		}
		return []clause{c}, nil

	case Call:
		c, err := s.call(n)
		if err != nil {
			return nil, err
		}
		return []clause{c}, nil

	case Param, Member, Index:
		c, err := s.boolean(e)
		if err != nil {
			return nil, err
		}
		return []clause{c}, nil

	case Constant, Arithmetic, LocalCollection, Lambda:
		return nil, unsupported(e, "not a boolean predicate")
	}
	return nil, unsupported(e, fmt.Sprintf("unknown expression kind %T", e))
}

// call dispatches method calls that yield booleans.
func (s scope) call(n Call) (clause, error) {
	switch n.Method {
	case MethodAny:
		return s.existential(n)
	case MethodContains:
		return s.contains(n)
	case MethodStartsWith, MethodEndsWith:
		return s.pattern(n)
	case MethodMatches:
		return s.matches(n)
	case MethodEquals:
		return s.equals(n)
	case MethodElementAt:
		return s.boolean(n)
	}
	return clause{}, unsupported(n, "not a boolean predicate")
}

// boolean translates a bare boolean field used as a predicate, which is
// shorthand for `field == true`.
func (s scope) boolean(e Expr) (clause, error) {
	path, err := s.resolvePath(e)
	if err != nil {
		return clause{}, err
	}
	if path.serializer.Kind() != KindBool {
		return clause{}, unsupported(e, fmt.Sprintf("%s field used as a predicate", path.serializer.Kind()))
	}
	return clause{path: path.wire(), kind: clauseEq, value: true}, nil
}
