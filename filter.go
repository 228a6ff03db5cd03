package bsonfilter

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// condition holds every constraint on one field path, merged from one or more
// clauses.
type condition struct {
	path string

	// hasEq is set when the path is compared for equality.
	hasEq bool
	eq    any

	// regex is a pattern the path must match.
	regex *primitive.Regex

	// ops holds operator constraints in the order they were added.
	ops bson.D
}

// filter is an immutable, ordered set of conditions.  Each call to with
// returns a new filter and leaves the receiver unchanged.
type filter struct {
	conds []condition
}

// fold merges clauses left to right into a single filter.
func fold(clauses []clause) (filter, error) {
	var (
		f   filter
		err error
	)
	for _, c := range clauses {
		if f, err = f.with(c); err != nil {
			return filter{}, err
		}
	}
	return f, nil
}

func (f filter) with(c clause) (filter, error) {
	next := fragment(c)

	conds := make([]condition, len(f.conds), len(f.conds)+1)
	copy(conds, f.conds)

	for i, existing := range conds {
		if existing.path != c.path {
			continue
		}
		merged, err := existing.merge(next)
		if err != nil {
			return filter{}, err
		}
		conds[i] = merged
		return filter{conds: conds}, nil
	}
	return filter{conds: append(conds, next)}, nil
}

// merge returns the union of two conditions on the same path.  Repeating an
// identical constraint is allowed;  the same operator with a different value
// is a ConflictingMergeError.
func (c condition) merge(other condition) (condition, error) {
	out := condition{
		path:  c.path,
		hasEq: c.hasEq,
		eq:    c.eq,
		regex: c.regex,
		ops:   append(bson.D{}, c.ops...),
	}

	if other.hasEq {
		if out.hasEq && !reflect.DeepEqual(out.eq, other.eq) {
			return condition{}, ConflictingMergeError{Path: c.path}
		}
		out.hasEq, out.eq = true, other.eq
	}
	if other.regex != nil {
		if out.regex != nil && *out.regex != *other.regex {
			return condition{}, ConflictingMergeError{Path: c.path, Operator: "$regex"}
		}
		out.regex = other.regex
	}

outer:
	for _, op := range other.ops {
		for _, existing := range out.ops {
			if existing.Key != op.Key {
				continue
			}
			if !reflect.DeepEqual(existing.Value, op.Value) {
				return condition{}, ConflictingMergeError{Path: c.path, Operator: op.Key}
			}
			continue outer
		}
		out.ops = append(out.ops, op)
	}
	return out, nil
}

// value renders the condition as the value stored under its path.  A lone
// equality or pattern is written bare, as {path: v} or {path: /re/}.
func (c condition) value() any {
	if len(c.ops) == 0 {
		switch {
		case c.hasEq && c.regex == nil:
			return c.eq
		case !c.hasEq && c.regex != nil:
			return *c.regex
		}
	}
	return c.operators()
}

// operators renders the condition as a bare operator document, as used for
// scalar elements within $elemMatch.
func (c condition) operators() bson.D {
	out := make(bson.D, 0, len(c.ops)+2)
	if c.hasEq {
		out = append(out, bson.E{Key: "$eq", Value: c.eq})
	}
	if c.regex != nil {
		out = append(out, bson.E{Key: "$regex", Value: *c.regex})
	}
	return append(out, c.ops...)
}

// scalar returns true if every condition applies to the scope's parameter
// itself rather than to a member of it.
func (f filter) scalar() bool {
	for _, c := range f.conds {
		if c.path != "" {
			return false
		}
	}
	return len(f.conds) > 0
}

// mixed returns true if the filter has conditions on both the parameter
// itself and on members of it.
func (f filter) mixed() bool {
	var self, member bool
	for _, c := range f.conds {
		if c.path == "" {
			self = true
		} else {
			member = true
		}
	}
	return self && member
}

// document renders the filter as a field-keyed filter document.
func (f filter) document() bson.D {
	out := make(bson.D, 0, len(f.conds))
	for _, c := range f.conds {
		out = append(out, bson.E{Key: c.path, Value: c.value()})
	}
	return out
}

// operators renders a scalar filter as a single operator document.
func (f filter) operators() bson.D {
	out := bson.D{}
	for _, c := range f.conds {
		out = append(out, c.operators()...)
	}
	return out
}

// fragment returns the condition expressed by one clause.
func fragment(c clause) condition {
	out := condition{path: c.path}
	switch c.kind {
	case clauseEq:
		out.hasEq, out.eq = true, c.value
	case clauseRegex:
		re := c.value.(primitive.Regex)
		out.regex = &re
	case clauseNonEmpty:
		out.ops = bson.D{
			{Key: "$ne", Value: nil},
			{Key: "$not", Value: bson.D{{Key: "$size", Value: int32(0)}}},
		}
	case clauseNot:
		out.ops = bson.D{{Key: "$not", Value: notOperand(*c.inner)}}
	default:
		out.ops = bson.D{{Key: clauseOperators[c.kind], Value: c.value}}
	}
	return out
}

// notOperand renders the operand of $not, which must be either an operator
// document or a regular expression.
func notOperand(c clause) any {
	if c.kind == clauseRegex {
		return c.value
	}
	return fragment(c).operators()
}
