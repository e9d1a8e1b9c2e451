// Package guard implements version-checked note persistence over an opaque
// key/value store. The store itself offers no compare-and-swap, so the guard
// serializes writers per key with a striped mutex and enforces the
// read-check-write cycle under that lock.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
)

const keyPrefix = "note:"

const lockStripes = 64

// Guard mediates every note write. A mutation is accepted only when the
// caller's expected version matches the stored one; accepted writes bump the
// version by exactly one.
type Guard struct {
	store kvstore.Store
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

func New(store kvstore.Store) *Guard {
	return &Guard{store: store, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &g.locks[h.Sum32()%lockStripes]
}

// Create stores a new note at version 1 and returns it.
func (g *Guard) Create(ctx context.Context, title, content string, tags []string) (*note.Note, error) {
	now := g.now().UTC()
	n := &note.Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Tags:      append([]string(nil), tags...),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.write(ctx, n); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Get returns the note, or ErrNotFound if it is missing or soft-deleted.
func (g *Guard) Get(ctx context.Context, id string) (*note.Note, error) {
	n, err := g.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsDeleted {
		return nil, note.ErrNotFound
	}
	return n, nil
}

// List returns all live notes. Order is unspecified; callers sort.
func (g *Guard) List(ctx context.Context) ([]*note.Note, error) {
	keys, err := g.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	notes := make([]*note.Note, 0, len(keys))
	for _, k := range keys {
		raw, err := g.store.Get(ctx, k)
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			// deleted between List and Get
			continue
		}
		if err != nil {
			return nil, err
		}
		var n note.Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		if n.IsDeleted {
			continue
		}
		notes = append(notes, &n)
	}
	return notes, nil
}

// ConditionalUpdate applies mutate to the stored note if and only if its
// version equals expected. On a mismatch it returns a ConflictError carrying
// the stored version. The mutator receives a scratch copy; id, version and
// timestamps it sets are overwritten.
func (g *Guard) ConditionalUpdate(ctx context.Context, id string, expected int64, mutate func(*note.Note) error) (*note.Note, error) {
	mu := g.lock(id)
	mu.Lock()
	defer mu.Unlock()

	cur, err := g.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.IsDeleted {
		return nil, note.ErrNotFound
	}
	if cur.Version != expected {
		return nil, &note.ConflictError{ServerVersion: cur.Version}
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.Version = expected + 1
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = g.now().UTC()
	next.IsDeleted = false

	if err := g.write(ctx, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// SoftDelete marks the note deleted. Subsequent reads report ErrNotFound.
// Deleting an already-deleted or missing note returns ErrNotFound.
func (g *Guard) SoftDelete(ctx context.Context, id string) error {
	mu := g.lock(id)
	mu.Lock()
	defer mu.Unlock()

	cur, err := g.read(ctx, id)
	if err != nil {
		return err
	}
	if cur.IsDeleted {
		return note.ErrNotFound
	}
	cur.IsDeleted = true
	cur.Version++
	cur.UpdatedAt = g.now().UTC()
	return g.write(ctx, cur)
}

func (g *Guard) read(ctx context.Context, id string) (*note.Note, error) {
	raw, err := g.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, note.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var n note.Note
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (g *Guard) write(ctx context.Context, n *note.Note) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return g.store.Put(ctx, keyPrefix+n.ID, raw)
}
