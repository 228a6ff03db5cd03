package bsonfilter

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
)

// existential translates any().  Without a sub-predicate this asserts that the
// collection exists and is non-empty.  With one, the sub-predicate is compiled
// against the element type and wrapped in $elemMatch.
func (s scope) existential(n Call) (clause, error) {
	path, err := s.resolvePath(n.Target)
	if err != nil {
		return clause{}, err
	}
	elem, err := path.serializer.Element()
	if err != nil {
		return clause{}, err
	}

	switch len(n.Args) {
	case 0:
		return clause{path: path.wire(), kind: clauseNonEmpty}, nil
	case 1:
	default:
		return clause{}, unsupported(n, "any takes at most one predicate")
	}

	lambda, ok := n.Args[0].(Lambda)
	if !ok {
		return clause{}, unsupported(n, "the argument to any must be a predicate")
	}

	inner := scope{param: lambda.Param, root: elem}
	clauses, err := inner.compile(lambda.Body)
	if err != nil {
		return clause{}, err
	}
	f, err := fold(clauses)
	if err != nil {
		return clause{}, err
	}

	var match bson.D
	switch {
	case f.mixed():
		return clause{}, unsupported(n, "the predicate tests both the element and its members")
	case f.scalar():
		match = f.operators()
	default:
		match = f.document()
	}
	return clause{path: path.wire(), kind: clauseElemMatch, value: match}, nil
}

// contains dispatches the three meanings of contains:  membership of a field in
// a local collection, an element of a collection field, or a substring.
func (s scope) contains(n Call) (clause, error) {
	if isValue(n.Target) {
		return s.membership(n)
	}

	path, err := s.resolvePath(n.Target)
	if err != nil {
		return clause{}, err
	}
	switch path.serializer.Kind() {
	case KindString:
		return s.pattern(n)
	case KindArray:
		return s.element(n, path)
	}
	return clause{}, unsupported(n, fmt.Sprintf("contains on a %s field", path.serializer.Kind()))
}

// membership translates `local.contains(field)` into $in, keeping the order of
// the local collection.
func (s scope) membership(n Call) (clause, error) {
	if len(n.Args) != 1 || !isPath(n.Args[0]) {
		return clause{}, unsupported(n, "the argument to a local contains must be a field")
	}
	values, err := localValues(n.Target)
	if err != nil {
		return clause{}, unsupported(n, err.Error())
	}
	path, err := s.resolvePath(n.Args[0])
	if err != nil {
		return clause{}, err
	}

	encoded := make(bson.A, len(values))
	for i, v := range values {
		if encoded[i], err = path.serializer.Encode(v); err != nil {
			return clause{}, err
		}
	}
	return clause{path: path.wire(), kind: clauseIn, value: encoded}, nil
}

// element translates `field.contains(v)` on a collection field.  Equality
// against an array field matches any element, so this is plain equality with
// the value encoded as an element.
func (s scope) element(n Call, path fieldPath) (clause, error) {
	if len(n.Args) != 1 {
		return clause{}, unsupported(n, "contains takes one argument")
	}
	value, ok := constantValue(n.Args[0])
	if !ok {
		return clause{}, unsupported(n, "the argument to contains must be a constant")
	}
	elem, err := path.serializer.Element()
	if err != nil {
		return clause{}, err
	}
	enc, err := elem.Encode(value)
	if err != nil {
		return clause{}, err
	}
	return clause{path: path.wire(), kind: clauseEq, value: enc}, nil
}

// localValues flattens a client-side collection.  Slices and arrays keep their
// order;  maps are treated as sets and yield their keys in sorted order so that
// output is deterministic.
func localValues(e Expr) ([]any, error) {
	switch n := e.(type) {
	case LocalCollection:
		return n.Values, nil
	case Constant:
		rv, ok := indirect(n.Value)
		if !ok {
			return nil, fmt.Errorf("local collection is null")
		}
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			out := make([]any, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).Interface()
			}
			return out, nil
		case reflect.Map:
			keys := rv.MapKeys()
			slices.SortFunc(keys, compareKeys)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = k.Interface()
			}
			return out, nil
		}
		return nil, fmt.Errorf("%T is not a collection", n.Value)
	}
	return nil, fmt.Errorf("not a local collection")
}

func compareKeys(a, b reflect.Value) int {
	fa, aok := toFloat64(a)
	fb, bok := toFloat64(b)
	if aok && bok {
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}
