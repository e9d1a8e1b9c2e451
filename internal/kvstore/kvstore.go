package kvstore

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

// Store is the minimal key-value contract the note layer is built on:
// plain get/put/delete plus list-by-prefix. There is no transaction and no
// compare-and-swap primitive, so callers that need atomic read-modify-write
// must serialize access themselves (see internal/note/guard).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete is idempotent: deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}
