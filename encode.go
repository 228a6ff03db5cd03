package bsonfilter

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// scalarSerializer encodes leaf values.  Numeric values are converted to the
// serializer's width so that a literal compared against an int64 field is
// always sent as an int64, whatever width it was written with.
type scalarSerializer struct {
	kind Kind
}

// Scalar returns the serializer for a scalar kind.  It panics if kind is
// KindDocument or KindArray.
func Scalar(kind Kind) Serializer {
	if kind == KindDocument || kind == KindArray {
		panic(fmt.Sprintf("bsonfilter: %s is not a scalar kind", kind))
	}
	return scalarSerializer{kind: kind}
}

func (s scalarSerializer) Kind() Kind       { return s.kind }
func (s scalarSerializer) TypeName() string { return s.kind.String() }

func (s scalarSerializer) Member(name string) (Field, error) {
	return Field{}, UnresolvableFieldError{Type: s.TypeName(), Member: name}
}

func (s scalarSerializer) Element() (Serializer, error) {
	return nil, UnresolvableFieldError{Type: s.TypeName(), Member: "[]"}
}

func (s scalarSerializer) Encode(v any) (any, error) {
	rv, ok := indirect(v)
	if !ok {
		return nil, nil
	}

	switch s.kind {
	case KindAny:
		return rv.Interface(), nil
	case KindBool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	case KindInt32:
		n, err := toInt64(rv)
		if err != nil {
			return nil, ValueEncodingError{Kind: s.kind, Value: v, Err: err}
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, ValueEncodingError{Kind: s.kind, Value: v, Err: fmt.Errorf("overflows int32")}
		}
		return int32(n), nil
	case KindInt64:
		n, err := toInt64(rv)
		if err != nil {
			return nil, ValueEncodingError{Kind: s.kind, Value: v, Err: err}
		}
		return n, nil
	case KindDouble:
		if f, ok := toFloat64(rv); ok {
			return f, nil
		}
	case KindString:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case KindObjectID:
		switch t := rv.Interface().(type) {
		case primitive.ObjectID:
			return t, nil
		case string:
			oid, err := primitive.ObjectIDFromHex(t)
			if err != nil {
				return nil, ValueEncodingError{Kind: s.kind, Value: v, Err: err}
			}
			return oid, nil
		}
	case KindDateTime:
		switch t := rv.Interface().(type) {
		case time.Time:
			return primitive.NewDateTimeFromTime(t), nil
		case primitive.DateTime:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, ValueEncodingError{Kind: s.kind, Value: v, Err: err}
			}
			return primitive.NewDateTimeFromTime(parsed), nil
		}
	}
	return nil, ValueEncodingError{Kind: s.kind, Value: v}
}

// documentSerializer encodes embedded documents.  Members keep their declared
// order, which is also the order of fields in encoded documents.
type documentSerializer struct {
	name    string
	members []Field
	// index maps both member names and wire names to positions in members.
	index map[string]int
}

func newDocumentSerializer(name string) *documentSerializer {
	return &documentSerializer{
		name:  name,
		index: map[string]int{},
	}
}

func (d *documentSerializer) add(m Field) {
	d.members = append(d.members, m)
	pos := len(d.members) - 1
	d.index[m.Name] = pos
	if _, ok := d.index[m.ElementName]; !ok {
		d.index[m.ElementName] = pos
	}
}

func (d *documentSerializer) Kind() Kind       { return KindDocument }
func (d *documentSerializer) TypeName() string { return d.name }

func (d *documentSerializer) Member(name string) (Field, error) {
	pos, ok := d.index[name]
	if !ok {
		return Field{}, UnresolvableFieldError{Type: d.name, Member: name}
	}
	return d.members[pos], nil
}

func (d *documentSerializer) Element() (Serializer, error) {
	return nil, UnresolvableFieldError{Type: d.name, Member: "[]"}
}

// Encode encodes a struct, map or bson.D as an embedded document.  Every
// declared member is written, with an explicit null for members that are
// unset, as the server compares embedded documents field by field.
func (d *documentSerializer) Encode(v any) (any, error) {
	rv, ok := indirect(v)
	if !ok {
		return nil, nil
	}

	get, err := d.accessor(rv)
	if err != nil {
		return nil, ValueEncodingError{Kind: KindDocument, Value: v, Err: err}
	}

	out := make(bson.D, 0, len(d.members))
	for _, m := range d.members {
		val, ok := get(m)
		if !ok {
			out = append(out, bson.E{Key: m.ElementName, Value: nil})
			continue
		}
		enc, err := m.Serializer.Encode(val)
		if err != nil {
			return nil, fmt.Errorf("encoding member %s.%s: %w", d.name, m.Name, err)
		}
		out = append(out, bson.E{Key: m.ElementName, Value: enc})
	}
	return out, nil
}

// accessor returns a function which reads members from a struct or map value.
func (d *documentSerializer) accessor(rv reflect.Value) (func(Field) (any, bool), error) {
	if doc, ok := rv.Interface().(bson.D); ok {
		m := doc.Map()
		return d.mapAccessor(func(key string) (any, bool) {
			val, ok := m[key]
			return val, ok
		})
	}

	switch rv.Kind() {
	case reflect.Struct:
		return func(m Field) (any, bool) {
			f := rv.FieldByName(m.Name)
			if !f.IsValid() || !f.CanInterface() {
				return nil, false
			}
			return f.Interface(), true
		}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map keys must be strings")
		}
		return d.mapAccessor(func(key string) (any, bool) {
			val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if !val.IsValid() {
				return nil, false
			}
			return val.Interface(), true
		})
	}
	return nil, fmt.Errorf("expected a document, got %s", rv.Kind())
}

func (d *documentSerializer) mapAccessor(get func(string) (any, bool)) (func(Field) (any, bool), error) {
	return func(m Field) (any, bool) {
		if val, ok := get(m.Name); ok {
			return val, true
		}
		return get(m.ElementName)
	}, nil
}

type arraySerializer struct {
	elem Serializer
}

// ArrayOf returns the serializer for arrays whose elements are encoded by
// elem.
func ArrayOf(elem Serializer) Serializer {
	return arraySerializer{elem: elem}
}

func (a arraySerializer) Kind() Kind       { return KindArray }
func (a arraySerializer) TypeName() string { return "[]" + a.elem.TypeName() }

func (a arraySerializer) Member(name string) (Field, error) {
	return Field{}, UnresolvableFieldError{Type: a.TypeName(), Member: name}
}

func (a arraySerializer) Element() (Serializer, error) { return a.elem, nil }

func (a arraySerializer) Encode(v any) (any, error) {
	rv, ok := indirect(v)
	if !ok {
		return nil, nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, ValueEncodingError{Kind: KindArray, Value: v}
	}
	out := make(bson.A, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		enc, err := a.elem.Encode(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// unknownSerializer stands in for a type referenced by a schema but never
// defined.  Every use of it fails, so that paths through it are reported as
// unresolvable at the point of use.
type unknownSerializer struct {
	name string
}

func (u unknownSerializer) Kind() Kind       { return KindAny }
func (u unknownSerializer) TypeName() string { return u.name }

func (u unknownSerializer) Member(name string) (Field, error) {
	return Field{}, UnresolvableFieldError{Type: u.name, Member: name}
}

func (u unknownSerializer) Element() (Serializer, error) {
	return nil, UnresolvableFieldError{Type: u.name}
}

func (u unknownSerializer) Encode(v any) (any, error) {
	return nil, UnresolvableFieldError{Type: u.name}
}

// indirect dereferences pointers and interfaces, returning false for nil.
func indirect(v any) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	return rv, true
}

func toInt64(rv reflect.Value) (int64, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("overflows int64")
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= 1<<63 {
			return 0, fmt.Errorf("not an integral value")
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("not a number")
}

func toFloat64(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// elementName returns the wire name for a struct field following the bson
// struct tag conventions:  an explicit tag name, or the lowercased field name.
func elementName(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup("bson")
	if !ok {
		return strings.ToLower(f.Name), true
	}
	name, _, _ := strings.Cut(tag, ",")
	switch name {
	case "-":
		return "", false
	case "":
		return strings.ToLower(f.Name), true
	}
	return name, true
}
