package bsonfilter

import (
	"fmt"
	"strings"
)

// Expr is a node within a predicate expression tree.  The set of node kinds is
// closed:  only types within this package implement Expr, and the dispatcher in
// compile.go handles each of them explicitly.
type Expr interface {
	fmt.Stringer

	exprNode()
}

// Predicate is a boolean expression over a single root document, eg. the
// `x` in `x.M[1] == 4`.
type Predicate struct {
	// Param is the name of the root parameter.  Paths must begin at this
	// parameter.
	Param string
	// Type is the document type of the root parameter, resolved via a Lookup.
	Type string
	// Body is the boolean expression.
	Body Expr
}

func (p Predicate) String() string {
	return p.Param + " => " + p.Body.String()
}

// CompareOp is a binary comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual
)

func (o CompareOp) String() string {
	switch o {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	}
	return fmt.Sprintf("CompareOp(%d)", int(o))
}

// mirror returns the operator to use when swapping the operands, so that
// `3 < x.a` becomes `x.a > 3`.
func (o CompareOp) mirror() CompareOp {
	switch o {
	case OpGreater:
		return OpLess
	case OpGreaterEqual:
		return OpLessEqual
	case OpLess:
		return OpGreater
	case OpLessEqual:
		return OpGreaterEqual
	default:
		return o
	}
}

// ArithOp is an arithmetic operator which may appear on the left hand side
// of a comparison.
type ArithOp int

const (
	OpModulo ArithOp = iota
)

func (o ArithOp) String() string {
	if o == OpModulo {
		return "%"
	}
	return fmt.Sprintf("ArithOp(%d)", int(o))
}

// Method names a method call that the compiler recognizes.
type Method string

const (
	// MethodAny is an existential test over a collection, with or without a
	// Lambda sub-predicate.
	MethodAny Method = "any"
	// MethodLen is the cardinality of a collection:  length, count().
	MethodLen Method = "len"
	// MethodElementAt selects an element of a collection by position.
	MethodElementAt Method = "elementAt"
	// MethodContains is a substring test on strings, a membership test on
	// local collections, or an element test on collection fields.
	MethodContains Method = "contains"
	MethodStartsWith Method = "startsWith"
	MethodEndsWith   Method = "endsWith"
	// MethodMatches matches a string against a regular expression.
	MethodMatches Method = "matches"
	// MethodEquals is the method form of equality, eg. `x.A.Equals("a")`.
	MethodEquals Method = "equals"
)

// Constant is a literal or closed-over local value.
type Constant struct {
	Value any
}

// Param references a lambda or root parameter by name.
type Param struct {
	Name string
}

// Member accesses a named member of a document.
type Member struct {
	Operand Expr
	Name    string
}

// Index accesses a collection element by position.
type Index struct {
	Operand Expr
	Index   Expr
}

// Compare is a binary comparison.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// Arithmetic is a binary arithmetic expression, only valid as an operand of
// Compare.
type Arithmetic struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

// Not is a logical negation.
type Not struct {
	Operand Expr
}

// And is a logical conjunction of two or more expressions.
type And struct {
	Operands []Expr
}

// Call is a method call on Target.
type Call struct {
	Method Method
	Target Expr
	Args   []Expr
}

// LocalCollection is a collection of values that lives on the client, eg. a
// list literal or a closed-over slice.
type LocalCollection struct {
	Values []any
}

// Lambda is a sub-predicate passed to a collection method, eg. the
// `g => g.D == "a"` in `x.G.Any(g => g.D == "a")`.
type Lambda struct {
	Param string
	Body  Expr
}

func (Constant) exprNode()        {}
func (Param) exprNode()           {}
func (Member) exprNode()          {}
func (Index) exprNode()           {}
func (Compare) exprNode()         {}
func (Arithmetic) exprNode()      {}
func (Not) exprNode()             {}
func (And) exprNode()             {}
func (Call) exprNode()            {}
func (LocalCollection) exprNode() {}
func (Lambda) exprNode()          {}

func (c Constant) String() string {
	if s, ok := c.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if c.Value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", c.Value)
}

func (p Param) String() string { return p.Name }

func (m Member) String() string { return m.Operand.String() + "." + m.Name }

func (i Index) String() string { return i.Operand.String() + "[" + i.Index.String() + "]" }

func (c Compare) String() string {
	return c.Left.String() + " " + c.Op.String() + " " + c.Right.String()
}

func (a Arithmetic) String() string {
	return a.Left.String() + " " + a.Op.String() + " " + a.Right.String()
}

func (n Not) String() string { return "!(" + n.Operand.String() + ")" }

func (a And) String() string {
	parts := make([]string, len(a.Operands))
	for i, o := range a.Operands {
		parts[i] = o.String()
	}
	return strings.Join(parts, " && ")
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Target.String() + "." + string(c.Method) + "(" + strings.Join(args, ", ") + ")"
}

func (l LocalCollection) String() string {
	parts := make([]string, len(l.Values))
	for i, v := range l.Values {
		parts[i] = Constant{Value: v}.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (l Lambda) String() string { return l.Param + " => " + l.Body.String() }
