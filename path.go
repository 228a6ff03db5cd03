package bsonfilter

import (
	"strconv"
	"strings"
)

// scope is the translation context for one predicate body.  The root
// predicate has a scope bound to the document type;  a lambda passed to any()
// gets a fresh scope bound to the element type, so paths inside it are
// relative to the element.
type scope struct {
	param string
	root  Serializer
}

// fieldPath is a resolved wire path along with the serializer that encodes
// values at the end of it.
type fieldPath struct {
	segments   []string
	serializer Serializer
}

func (p fieldPath) wire() string {
	return strings.Join(p.segments, ".")
}

func (p fieldPath) child(segment string, s Serializer) fieldPath {
	segments := make([]string, len(p.segments), len(p.segments)+1)
	copy(segments, p.segments)
	return fieldPath{
		segments:   append(segments, segment),
		serializer: s,
	}
}

// isPath returns whether e is a chain of member and index accesses, ie.
// something that resolvePath may accept.
func isPath(e Expr) bool {
	switch n := e.(type) {
	case Param:
		return true
	case Member:
		return isPath(n.Operand)
	case Index:
		return isPath(n.Operand)
	case Call:
		return n.Method == MethodElementAt && isPath(n.Target)
	}
	return false
}

// resolvePath walks a member/index chain down to the scope's parameter.
// Member segments consult the serializer at the current depth;  index
// segments consult the element serializer of the collection above them.
func (s scope) resolvePath(e Expr) (fieldPath, error) {
	switch n := e.(type) {
	case Param:
		if n.Name != s.param {
			return fieldPath{}, InvalidPathRootError{Path: e.String(), Expected: s.param}
		}
		return fieldPath{serializer: s.root}, nil

	case Member:
		parent, err := s.resolvePath(n.Operand)
		if err != nil {
			return fieldPath{}, err
		}
		m, err := parent.serializer.Member(n.Name)
		if err != nil {
			return fieldPath{}, err
		}
		return parent.child(m.ElementName, m.Serializer), nil

	case Index:
		return s.resolveElement(e, n.Operand, n.Index)

	case Call:
		if n.Method == MethodElementAt && len(n.Args) == 1 {
			return s.resolveElement(e, n.Target, n.Args[0])
		}
	}
	return fieldPath{}, unsupported(e, "not a field path")
}

func (s scope) resolveElement(e, collection, index Expr) (fieldPath, error) {
	parent, err := s.resolvePath(collection)
	if err != nil {
		return fieldPath{}, err
	}
	elem, err := parent.serializer.Element()
	if err != nil {
		return fieldPath{}, err
	}
	pos, err := constantInt(index)
	if err != nil || pos < 0 {
		return fieldPath{}, unsupported(e, "index must be a non-negative integer constant")
	}
	return parent.child(strconv.FormatInt(pos, 10), elem), nil
}

// constantValue returns the value of a Constant node.
func constantValue(e Expr) (any, bool) {
	c, ok := e.(Constant)
	if !ok {
		return nil, false
	}
	return c.Value, true
}

func constantInt(e Expr) (int64, error) {
	v, ok := constantValue(e)
	if !ok {
		return 0, unsupported(e, "expected an integer constant")
	}
	rv, ok := indirect(v)
	if !ok {
		return 0, unsupported(e, "expected an integer constant")
	}
	n, err := toInt64(rv)
	if err != nil {
		return 0, unsupported(e, "expected an integer constant")
	}
	return n, nil
}
