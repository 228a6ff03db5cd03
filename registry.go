package bsonfilter

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Registry is a Lookup backed by Go struct types and declarative schemas.
// Types are registered up front and the registry is then shared read-only
// between compilations;  serializers are built lazily on first lookup.
type Registry struct {
	lock sync.RWMutex

	// reflected holds types registered via Register.
	reflected map[string]reflect.Type
	// specs holds types registered via Define or LoadSchema.
	specs map[string]TypeSpec

	// built caches constructed serializers by type name.
	built map[string]Serializer
}

// Schema is the file format read by LoadSchema.
type Schema struct {
	Types map[string]TypeSpec `json:"types"`
}

// TypeSpec declares a document type.
type TypeSpec struct {
	Fields []FieldSpec `json:"fields"`
}

// FieldSpec declares one member of a document type.  Type is a scalar kind
// name (eg. "int32", "string"), the name of another document type, or either
// of those prefixed with "[]" for arrays.
type FieldSpec struct {
	Name    string `json:"name"`
	Element string `json:"element,omitempty"`
	Type    string `json:"type"`
}

func NewRegistry() *Registry {
	return &Registry{
		reflected: map[string]reflect.Type{},
		specs:     map[string]TypeSpec{},
		built:     map[string]Serializer{},
	}
}

// Register registers the struct type of sample under name.  Member wire names
// follow `bson` struct tags.
func (r *Registry) Register(name string, sample any) error {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("cannot register %T as %q: not a struct", sample, name)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.reflected[name] = t
	r.built = map[string]Serializer{}
	return nil
}

// Define registers a declarative document type.
func (r *Registry) Define(name string, spec TypeSpec) error {
	if name == "" {
		return fmt.Errorf("type name must not be empty")
	}
	for _, f := range spec.Fields {
		if f.Name == "" || f.Type == "" {
			return fmt.Errorf("type %q: fields require a name and a type", name)
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.specs[name] = spec
	r.built = map[string]Serializer{}
	return nil
}

// LoadSchema reads a JSON Schema document and defines each of its types.
func (r *Registry) LoadSchema(reader io.Reader) error {
	var s Schema
	if err := json.NewDecoder(reader).Decode(&s); err != nil {
		return fmt.Errorf("failed to decode schema: %w", err)
	}
	for name, spec := range s.Types {
		if err := r.Define(name, spec); err != nil {
			return err
		}
	}
	return nil
}

// Root implements Lookup.
func (r *Registry) Root(typeName string) (Serializer, error) {
	r.lock.RLock()
	s, ok := r.built[typeName]
	r.lock.RUnlock()
	if ok {
		return s, nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	b := &builder{registry: r, byType: map[reflect.Type]*documentSerializer{}}
	s = b.named(typeName)
	if u, ok := s.(unknownSerializer); ok {
		return nil, UnresolvableFieldError{Type: u.name}
	}
	r.built[typeName] = s
	return s, nil
}

// builder constructs serializers while the registry lock is held.  Document
// serializers are memoized before their members are filled in, so recursive
// types terminate.
type builder struct {
	registry *Registry
	byType   map[reflect.Type]*documentSerializer
}

func (b *builder) named(name string) Serializer {
	if s, ok := b.registry.built[name]; ok {
		return s
	}
	if elem, ok := strings.CutPrefix(name, "[]"); ok {
		return ArrayOf(b.named(elem))
	}
	if kind, ok := ParseKind(name); ok {
		return Scalar(kind)
	}
	if t, ok := b.registry.reflected[name]; ok {
		return b.reflected(t)
	}
	spec, ok := b.registry.specs[name]
	if !ok {
		return unknownSerializer{name: name}
	}

	doc := newDocumentSerializer(name)
	b.registry.built[name] = doc
	for _, f := range spec.Fields {
		element := f.Element
		if element == "" {
			element = f.Name
		}
		doc.add(Field{
			Name:        f.Name,
			ElementName: element,
			Serializer:  b.named(f.Type),
		})
	}
	return doc
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	objectIDType = reflect.TypeOf(primitive.ObjectID{})
	dateTimeType = reflect.TypeOf(primitive.DateTime(0))
)

func (b *builder) reflected(t reflect.Type) Serializer {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t {
	case timeType, dateTimeType:
		return Scalar(KindDateTime)
	case objectIDType:
		return Scalar(KindObjectID)
	}

	switch t.Kind() {
	case reflect.Bool:
		return Scalar(KindBool)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return Scalar(KindInt32)
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return Scalar(KindInt64)
	case reflect.Float32, reflect.Float64:
		return Scalar(KindDouble)
	case reflect.String:
		return Scalar(KindString)
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// Binary data.
			return Scalar(KindAny)
		}
		return ArrayOf(b.reflected(t.Elem()))
	case reflect.Struct:
		return b.structType(t)
	}
	return Scalar(KindAny)
}

func (b *builder) structType(t reflect.Type) Serializer {
	if doc, ok := b.byType[t]; ok {
		return doc
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}
	doc := newDocumentSerializer(name)
	b.byType[t] = doc

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		element, ok := elementName(f)
		if !ok {
			continue
		}
		doc.add(Field{
			Name:        f.Name,
			ElementName: element,
			Serializer:  b.reflected(f.Type),
		})
	}
	return doc
}
