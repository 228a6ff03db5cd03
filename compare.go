package bsonfilter

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

var relational = map[CompareOp]clauseKind{
	OpEqual:        clauseEq,
	OpNotEqual:     clauseNe,
	OpGreater:      clauseGt,
	OpGreaterEqual: clauseGte,
	OpLess:         clauseLt,
	OpLessEqual:    clauseLte,
}

// isValue returns true for nodes evaluated on the client.
func isValue(e Expr) bool {
	switch e.(type) {
	case Constant, LocalCollection:
		return true
	}
	return false
}

// comparison translates a binary comparison.  The field is always normalized
// onto the left hand side, so `3 == len(x.M)` is handled as `len(x.M) == 3`.
func (s scope) comparison(n Compare) (clause, error) {
	left, right, op := n.Left, n.Right, n.Op
	if isValue(left) && !isValue(right) {
		left, right, op = right, left, op.mirror()
	}

	switch l := left.(type) {
	case Call:
		if l.Method == MethodLen {
			return s.cardinality(n, l, op, right)
		}
	case Arithmetic:
		return s.arithmetic(n, l, op, right)
	}

	if !isPath(left) {
		return clause{}, unsupported(n, "comparisons must have a field on one side")
	}
	value, ok := constantValue(right)
	if !ok {
		return clause{}, unsupported(n, "comparisons must have a constant on one side")
	}
	path, err := s.resolvePath(left)
	if err != nil {
		return clause{}, err
	}
	return s.scalar(path, op, value)
}

// scalar compares the value at path with a literal.  The literal is encoded
// by the path's serializer:  for documents, this yields an embedded document
// with every member present.
func (s scope) scalar(path fieldPath, op CompareOp, value any) (clause, error) {
	kind, ok := relational[op]
	if !ok {
		return clause{}, fmt.Errorf("unknown comparison operator %s", op)
	}
	enc, err := path.serializer.Encode(value)
	if err != nil {
		return clause{}, err
	}
	return clause{path: path.wire(), kind: kind, value: enc}, nil
}

// equals translates the method form of equality, `x.A.Equals("a")`.
func (s scope) equals(n Call) (clause, error) {
	if len(n.Args) != 1 {
		return clause{}, unsupported(n, "equals takes one argument")
	}
	return s.comparison(Compare{Op: OpEqual, Left: n.Target, Right: n.Args[0]})
}

// cardinality translates `len(path) == N` into $size.  The server cannot
// compare array lengths with range operators, so only == and != are allowed.
func (s scope) cardinality(n Compare, length Call, op CompareOp, right Expr) (clause, error) {
	path, err := s.resolvePath(length.Target)
	if err != nil {
		return clause{}, err
	}
	if path.serializer.Kind() != KindArray {
		return clause{}, unsupported(n, "length is only supported on collections")
	}
	size, err := constantInt(right)
	if err != nil {
		return clause{}, err
	}
	if size < 0 || size > math.MaxInt32 {
		return clause{}, unsupported(n, "collection length out of range")
	}

	c := clause{path: path.wire(), kind: clauseSize, value: int32(size)}
	switch op {
	case OpEqual:
		return c, nil
	case OpNotEqual:
		return negate(c, n)
	}
	return clause{}, unsupported(n, "collection length may only be compared with == or !=")
}

// arithmetic translates `path % divisor == remainder` into $mod.  Both
// operands are sent as 64 bit integers whatever the width of the field.
func (s scope) arithmetic(n Compare, a Arithmetic, op CompareOp, right Expr) (clause, error) {
	if a.Op != OpModulo {
		return clause{}, unsupported(n, fmt.Sprintf("arithmetic operator %s", a.Op))
	}
	if !isPath(a.Left) {
		return clause{}, unsupported(n, "the dividend must be a field")
	}
	path, err := s.resolvePath(a.Left)
	if err != nil {
		return clause{}, err
	}
	divisor, err := constantInt(a.Right)
	if err != nil {
		return clause{}, err
	}
	if divisor == 0 {
		return clause{}, unsupported(n, "division by zero")
	}
	remainder, err := constantInt(right)
	if err != nil {
		return clause{}, err
	}

	c := clause{path: path.wire(), kind: clauseMod, value: bson.A{divisor, remainder}}
	switch op {
	case OpEqual:
		return c, nil
	case OpNotEqual:
		return negate(c, n)
	}
	return clause{}, unsupported(n, "modulo may only be compared with == or !=")
}
