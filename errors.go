package bsonfilter

import (
	"fmt"
)

/*
Errors returned when compiling a predicate.  All of them are deterministic:  the
same predicate and lookup always fail in the same way, so none are retryable.
*/

var (
	ErrUnsupportedExpression    = UnsupportedExpressionError{}
	ErrInvalidPathRoot          = InvalidPathRootError{}
	ErrUnresolvableField        = UnresolvableFieldError{}
	ErrUnsupportedPatternOption = UnsupportedPatternOptionError{}
	ErrConflictingMerge         = ConflictingMergeError{}
	ErrValueEncoding            = ValueEncodingError{}
)

// UnsupportedExpressionError is returned when a predicate node has no
// translation rule.
type UnsupportedExpressionError struct {
	Expr   string
	Reason string
}

func (e UnsupportedExpressionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported expression: %s", e.Expr)
	}
	return fmt.Sprintf("unsupported expression %s: %s", e.Expr, e.Reason)
}

// Is returns true if the target error is an UnsupportedExpressionError.
func (e UnsupportedExpressionError) Is(target error) bool {
	_, ok := target.(UnsupportedExpressionError)
	return ok
}

func unsupported(e Expr, reason string) error {
	return UnsupportedExpressionError{Expr: e.String(), Reason: reason}
}

// InvalidPathRootError is returned when a field path does not start at the
// parameter bound by the enclosing predicate or lambda.
type InvalidPathRootError struct {
	Path     string
	Expected string
}

func (e InvalidPathRootError) Error() string {
	return fmt.Sprintf("path %s does not start at parameter %q", e.Path, e.Expected)
}

// Is returns true if the target error is an InvalidPathRootError.
func (e InvalidPathRootError) Is(target error) bool {
	_, ok := target.(InvalidPathRootError)
	return ok
}

// UnresolvableFieldError is returned when a member has no registered
// serializer.
type UnresolvableFieldError struct {
	Type   string
	Member string
}

func (e UnresolvableFieldError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("no serializer registered for type %q", e.Type)
	}
	return fmt.Sprintf("no serializer for member %q of %s", e.Member, e.Type)
}

// Is returns true if the target error is an UnresolvableFieldError.
func (e UnresolvableFieldError) Is(target error) bool {
	_, ok := target.(UnresolvableFieldError)
	return ok
}

// UnsupportedPatternOptionError is returned when a regular expression option
// other than case-insensitivity is requested.
type UnsupportedPatternOptionError struct {
	Option string
}

func (e UnsupportedPatternOptionError) Error() string {
	return fmt.Sprintf("unsupported regular expression option %q", e.Option)
}

// Is returns true if the target error is an UnsupportedPatternOptionError.
func (e UnsupportedPatternOptionError) Is(target error) bool {
	_, ok := target.(UnsupportedPatternOptionError)
	return ok
}

// ConflictingMergeError is returned when two conjuncts on the same field path
// set the same operator to different values.
type ConflictingMergeError struct {
	Path     string
	Operator string
}

func (e ConflictingMergeError) Error() string {
	if e.Operator == "" {
		return fmt.Sprintf("conflicting equality conditions on %q", e.Path)
	}
	return fmt.Sprintf("conflicting values for %s on %q", e.Operator, e.Path)
}

// Is returns true if the target error is a ConflictingMergeError.
func (e ConflictingMergeError) Is(target error) bool {
	_, ok := target.(ConflictingMergeError)
	return ok
}

// ValueEncodingError is returned when a literal cannot be represented by the
// serializer of the field it is compared against, eg. a string compared
// against an int32 field or an integer that overflows 32 bits.
type ValueEncodingError struct {
	Kind  Kind
	Value any
	Err   error
}

func (e ValueEncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot encode %v (%T) as %s: %v", e.Value, e.Value, e.Kind, e.Err)
	}
	return fmt.Sprintf("cannot encode %v (%T) as %s", e.Value, e.Value, e.Kind)
}

func (e ValueEncodingError) Unwrap() error { return e.Err }

// Is returns true if the target error is a ValueEncodingError.
func (e ValueEncodingError) Is(target error) bool {
	_, ok := target.(ValueEncodingError)
	return ok
}
