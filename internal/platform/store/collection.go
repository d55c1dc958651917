package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnchanged may be returned by an Update callback to skip the write.
// Update then returns nil.
var ErrUnchanged = errors.New("collection unchanged")

// Collection is a typed JSON list persisted whole under a single key.
// Update is read-modify-write under the key's lock; concurrent writers in
// other processes still race (last whole-value write wins).
type Collection[T any] struct {
	store Store
	key   string
	locks *KeyLocker
}

// NewCollection binds a list of T to key in s. Collections that share a key
// must share locks.
func NewCollection[T any](s Store, key string, locks *KeyLocker) *Collection[T] {
	if locks == nil {
		locks = NewKeyLocker()
	}
	return &Collection[T]{store: s, key: key, locks: locks}
}

// Key returns the storage key of the collection.
func (c *Collection[T]) Key() string { return c.key }

// Load returns the current list. An absent key is an empty list.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	return c.load(ctx)
}

// Update applies fn to the current list and writes the result back.
// An empty result removes the key. If fn returns an error the list is left
// untouched and the error is returned (ErrUnchanged is swallowed).
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	unlock := c.locks.Lock(c.key)
	defer unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}

	next, err := fn(items)
	if err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}

	if len(next) == 0 {
		return c.store.Remove(ctx, c.key)
	}

	data, err := json.Marshal(next)
	if err != nil {
		return Fail("collection", "encode", c.key, err)
	}
	return c.store.Set(ctx, c.key, string(data))
}

func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, Fail("collection", "decode", c.key, err)
	}
	return items, nil
}
