package bsonfilter

import "fmt"

// clauseKind identifies the operator form of a single compiled condition.
type clauseKind int

const (
	clauseEq clauseKind = iota
	clauseNe
	clauseGt
	clauseGte
	clauseLt
	clauseLte
	clauseSize
	clauseMod
	clauseRegex
	clauseIn
	clauseNin
	clauseNot
	clauseNonEmpty
	clauseElemMatch
)

var clauseOperators = map[clauseKind]string{
	clauseEq:        "$eq",
	clauseNe:        "$ne",
	clauseGt:        "$gt",
	clauseGte:       "$gte",
	clauseLt:        "$lt",
	clauseLte:       "$lte",
	clauseSize:      "$size",
	clauseMod:       "$mod",
	clauseRegex:     "$regex",
	clauseIn:        "$in",
	clauseNin:       "$nin",
	clauseNot:       "$not",
	clauseElemMatch: "$elemMatch",
}

func (k clauseKind) String() string {
	if op, ok := clauseOperators[k]; ok {
		return op
	}
	if k == clauseNonEmpty {
		return "nonEmpty"
	}
	return fmt.Sprintf("clauseKind(%d)", int(k))
}

// clause is a single condition on one field path.  A predicate compiles to a
// list of clauses which are then merged into one filter document.
type clause struct {
	path  string
	kind  clauseKind
	value any
	// inner is the negated clause, for clauseNot.
	inner *clause
}

type negateAction int

const (
	// negateInvert replaces the clause kind with its inverse, keeping the value.
	negateInvert negateAction = iota
	// negateWrap wraps the clause in $not.
	negateWrap
	// negateUnwrap removes an existing $not, so double negation cancels.
	negateUnwrap
	// negateReject fails the translation.
	negateReject
)

type negationRule struct {
	action negateAction
	// inverse is used with negateInvert.
	inverse clauseKind
}

// negationRules maps every clause kind to the form it takes underneath a
// logical not.  Equality and membership are inverted in place;  operators
// with no inverse are wrapped in $not.  Existential tests are rejected:  a
// negated $elemMatch has no agreed meaning.
var negationRules = map[clauseKind]negationRule{
	clauseEq:        {action: negateInvert, inverse: clauseNe},
	clauseNe:        {action: negateInvert, inverse: clauseEq},
	clauseIn:        {action: negateInvert, inverse: clauseNin},
	clauseNin:       {action: negateInvert, inverse: clauseIn},
	clauseGt:        {action: negateWrap},
	clauseGte:       {action: negateWrap},
	clauseLt:        {action: negateWrap},
	clauseLte:       {action: negateWrap},
	clauseSize:      {action: negateWrap},
	clauseMod:       {action: negateWrap},
	clauseRegex:     {action: negateWrap},
	clauseNot:       {action: negateUnwrap},
	clauseNonEmpty:  {action: negateReject},
	clauseElemMatch: {action: negateReject},
}

// negate returns the clause matching exactly the documents c does not.  e is
// the negated expression, used for errors.
func negate(c clause, e Expr) (clause, error) {
	rule, ok := negationRules[c.kind]
	if !ok {
		return clause{}, unsupported(e, fmt.Sprintf("cannot negate %s", c.kind))
	}

	switch rule.action {
	case negateInvert:
		return clause{path: c.path, kind: rule.inverse, value: c.value}, nil
	case negateWrap:
		inner := c
		return clause{path: c.path, kind: clauseNot, inner: &inner}, nil
	case negateUnwrap:
		return *c.inner, nil
	}
	return clause{}, unsupported(e, "negated existential tests are not supported")
}
