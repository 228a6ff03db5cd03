// Package docstore holds small document collections which are queried with
// compiled filter documents.  Collections evaluate filters locally via
// bsonfilter.Match, so they behave like a server-side collection for the
// operators the compiler emits.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inngest/bsonfilter"
)

var (
	// ErrDuplicateID is returned when inserting a document whose _id is
	// already stored.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrClosed is returned when using a closed collection.
	ErrClosed = errors.New("collection is closed")
)

// Collection stores BSON documents keyed by their _id.
type Collection interface {
	// Insert stores documents, returning their ids.  Documents without an
	// _id are assigned a random UUID string.
	Insert(ctx context.Context, docs ...any) ([]any, error)
	// Find returns every document matching filter, ordered by the encoding
	// of their ids.
	Find(ctx context.Context, filter bson.D) ([]bson.Raw, error)
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter bson.D) (int, error)
	Close() error
}

// FindWhere compiles expr against typeName and returns the matching documents
// from coll.
func FindWhere(ctx context.Context, coll Collection, c *bsonfilter.Compiler, typeName, expr string) ([]bson.Raw, error) {
	filter, err := c.Compile(ctx, typeName, expr)
	if err != nil {
		return nil, err
	}
	return coll.Find(ctx, filter)
}

// entry is an encoded document along with its storage key.
type entry struct {
	key string
	id  any
	raw bson.Raw
}

// prepare encodes a document, assigning an _id if it has none.  The _id is
// always the first element of the stored document.
func prepare(doc any) (entry, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return entry{}, fmt.Errorf("failed to encode document: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return entry{}, fmt.Errorf("failed to decode document: %w", err)
	}

	var id any
	rest := make(bson.D, 0, len(d))
	for _, e := range d {
		if e.Key == "_id" {
			id = e.Value
			continue
		}
		rest = append(rest, e)
	}
	if id == nil {
		id = uuid.NewString()
	}

	raw, err = bson.Marshal(append(bson.D{{Key: "_id", Value: id}}, rest...))
	if err != nil {
		return entry{}, fmt.Errorf("failed to encode document: %w", err)
	}
	key, err := idKey(id)
	if err != nil {
		return entry{}, err
	}
	return entry{key: key, id: id, raw: raw}, nil
}

// idKey returns the storage key for a document id:  the BSON type byte
// followed by the encoded value.
func idKey(id any) (string, error) {
	t, data, err := bson.MarshalValue(id)
	if err != nil {
		return "", fmt.Errorf("failed to encode document id: %w", err)
	}
	return string(append([]byte{byte(t)}, data...)), nil
}

// filterDocs evaluates filter against each document concurrently, keeping the
// order of docs.
func filterDocs(filter bson.D, docs []bson.Raw) ([]bson.Raw, error) {
	matched, err := iter.MapErr(docs, func(raw *bson.Raw) (bool, error) {
		var d bson.D
		if err := bson.Unmarshal(*raw, &d); err != nil {
			return false, fmt.Errorf("failed to decode stored document: %w", err)
		}
		return bsonfilter.Match(filter, d)
	})
	if err != nil {
		return nil, err
	}

	out := make([]bson.Raw, 0, len(docs))
	for i, ok := range matched {
		if ok {
			out = append(out, docs[i])
		}
	}
	return out, nil
}
