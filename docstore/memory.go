package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/btree"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inngest/bsonfilter/internal/log"
)

// NewMemory returns an empty in-memory collection.
func NewMemory() Collection {
	return &memory{
		docs: btree.NewMap[string, bson.Raw](32),
	}
}

type memory struct {
	lock   sync.RWMutex
	docs   *btree.Map[string, bson.Raw]
	closed bool
}

func (m *memory) Insert(ctx context.Context, docs ...any) ([]any, error) {
	entries := make([]entry, len(docs))
	for i, doc := range docs {
		e, err := prepare(doc)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	seen := map[string]struct{}{}
	for _, e := range entries {
		_, stored := m.docs.Get(e.key)
		_, batched := seen[e.key]
		if stored || batched {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, e.id)
		}
		seen[e.key] = struct{}{}
	}

	ids := make([]any, len(entries))
	for i, e := range entries {
		m.docs.Set(e.key, e.raw)
		ids[i] = e.id
	}
	log.Debugw(ctx, "inserted documents", "store", "memory", "count", len(ids))
	return ids, nil
}

func (m *memory) Find(ctx context.Context, filter bson.D) ([]bson.Raw, error) {
	m.lock.RLock()
	if m.closed {
		m.lock.RUnlock()
		return nil, ErrClosed
	}
	docs := make([]bson.Raw, 0, m.docs.Len())
	m.docs.Scan(func(_ string, raw bson.Raw) bool {
		docs = append(docs, raw)
		return true
	})
	m.lock.RUnlock()

	found, err := filterDocs(filter, docs)
	if err != nil {
		return nil, err
	}
	log.Debugw(ctx, "scanned collection", "store", "memory", "scanned", len(docs), "matched", len(found))
	return found, nil
}

func (m *memory) Count(ctx context.Context, filter bson.D) (int, error) {
	found, err := m.Find(ctx, filter)
	return len(found), err
}

func (m *memory) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	m.docs = btree.NewMap[string, bson.Raw](32)
	return nil
}
