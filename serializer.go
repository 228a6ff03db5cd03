package bsonfilter

import "fmt"

// Kind is the wire kind of values governed by a serializer.
type Kind int

const (
	KindAny Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindObjectID
	KindDateTime
	KindDocument
	KindArray
)

var kindNames = map[Kind]string{
	KindAny:      "any",
	KindBool:     "bool",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindDouble:   "double",
	KindString:   "string",
	KindObjectID: "objectId",
	KindDateTime: "date",
	KindDocument: "document",
	KindArray:    "array",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the scalar kind with the given name, as used by
// declarative schemas.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name && k != KindDocument && k != KindArray {
			return k, true
		}
	}
	return KindAny, false
}

// Serializer encodes values of one type into their wire representation and
// describes the structure beneath that type.
type Serializer interface {
	// Kind returns the wire kind of values encoded by this serializer.
	Kind() Kind
	// TypeName returns the name of the type the serializer encodes, used in
	// errors.
	TypeName() string
	// Encode returns the wire representation of v.  Numeric values are always
	// converted to the width of Kind, regardless of the width of v.
	Encode(v any) (any, error)
	// Member returns the wire name and serializer of a document member.  It
	// returns an UnresolvableFieldError for unknown members or for
	// serializers which are not documents.
	Member(name string) (Field, error)
	// Element returns the serializer for elements of an array.  It returns
	// an UnresolvableFieldError for serializers which are not arrays.
	Element() (Serializer, error)
}

// Field describes one member of a document type.
type Field struct {
	// Name is the member name as written in predicates.
	Name string
	// ElementName is the field name used on the wire.
	ElementName string
	Serializer  Serializer
}

// Lookup resolves document types to serializers.  Implementations must be
// safe for concurrent use;  the compiler only reads from them.
type Lookup interface {
	Root(typeName string) (Serializer, error)
}
