package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inngest/bsonfilter/internal/log"
)

var (
	docPrefix = []byte("d/")
	// docUpper is the exclusive upper bound of keys under docPrefix.
	docUpper = []byte("d0")
)

type pebbleConfig struct {
	sync bool
	fs   vfs.FS
}

// PebbleOption configures a pebble-backed collection.
type PebbleOption func(*pebbleConfig)

// WithSync sets whether inserts wait for the write-ahead log to be synced.
// Defaults to true.
func WithSync(sync bool) PebbleOption {
	return func(c *pebbleConfig) {
		c.sync = sync
	}
}

// WithFS sets the filesystem used by pebble, eg. vfs.NewMem() in tests.
func WithFS(fs vfs.FS) PebbleOption {
	return func(c *pebbleConfig) {
		c.fs = fs
	}
}

// OpenPebble opens or creates a collection stored in a pebble database at dir.
func OpenPebble(ctx context.Context, dir string, opts ...PebbleOption) (Collection, error) {
	c := pebbleConfig{sync: true, fs: vfs.Default}
	for _, opt := range opts {
		opt(&c)
	}

	db, err := pebble.Open(dir, &pebble.Options{
		FS:     c.fs,
		Logger: pebbleLogger{ctx: log.AddTags(ctx, "store", "pebble")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database at %s: %w", dir, err)
	}

	writeOpts := pebble.NoSync
	if c.sync {
		writeOpts = pebble.Sync
	}
	return &pebbleCollection{db: db, writeOpts: writeOpts}, nil
}

type pebbleCollection struct {
	// lock serializes inserts so that duplicate id checks and writes are
	// atomic, and keeps the database open during scans.
	lock sync.RWMutex

	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	closed    bool
}

func (p *pebbleCollection) Insert(ctx context.Context, docs ...any) ([]any, error) {
	entries := make([]entry, len(docs))
	for i, doc := range docs {
		e, err := prepare(doc)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	seen := map[string]struct{}{}
	ids := make([]any, len(entries))
	for i, e := range entries {
		key := storageKey(e.key)
		if _, ok := seen[e.key]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, e.id)
		}
		exists, err := p.exists(key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, e.id)
		}
		if err := batch.Set(key, e.raw, nil); err != nil {
			return nil, err
		}
		seen[e.key] = struct{}{}
		ids[i] = e.id
	}

	if err := batch.Commit(p.writeOpts); err != nil {
		return nil, fmt.Errorf("failed to commit documents: %w", err)
	}
	log.Debugw(ctx, "inserted documents", "store", "pebble", "count", len(ids))
	return ids, nil
}

func (p *pebbleCollection) exists(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (p *pebbleCollection) Find(ctx context.Context, filter bson.D) ([]bson.Raw, error) {
	docs, err := p.scan()
	if err != nil {
		return nil, err
	}
	found, err := filterDocs(filter, docs)
	if err != nil {
		return nil, err
	}
	log.Debugw(ctx, "scanned collection", "store", "pebble", "scanned", len(docs), "matched", len(found))
	return found, nil
}

func (p *pebbleCollection) scan() ([]bson.Raw, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: docPrefix,
		UpperBound: docUpper,
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var docs []bson.Raw
	for it.First(); it.Valid(); it.Next() {
		// The iterator reuses its buffers.
		docs = append(docs, bson.Raw(append([]byte(nil), it.Value()...)))
	}
	return docs, it.Error()
}

func (p *pebbleCollection) Count(ctx context.Context, filter bson.D) (int, error) {
	found, err := p.Find(ctx, filter)
	return len(found), err
}

func (p *pebbleCollection) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}

func storageKey(key string) []byte {
	return append(append([]byte(nil), docPrefix...), key...)
}

// pebbleLogger routes pebble's logs through the package logger.
type pebbleLogger struct {
	ctx context.Context
}

func (l pebbleLogger) Infof(format string, args ...any) {
	log.Debugf(l.ctx, format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	log.Errorf(l.ctx, format, args...)
}

// Fatalf must not return;  pebble calls it on unrecoverable errors.
func (l pebbleLogger) Fatalf(format string, args ...any) {
	log.Errorf(l.ctx, format, args...)
	panic(fmt.Sprintf(format, args...))
}
