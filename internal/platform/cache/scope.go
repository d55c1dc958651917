package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by DeletePrefix for drivers that cannot list keys.
var ErrUnsupported = errors.New("operation not supported by cache driver")

// PrefixDeleter is implemented by drivers that can drop every key starting
// with a prefix.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// DeletePrefix drops every key of c starting with prefix and returns how many
// were removed.
func DeletePrefix(ctx context.Context, c Cache, prefix string) (int, error) {
	pd, ok := c.(PrefixDeleter)
	if !ok {
		return 0, ErrUnsupported
	}
	return pd.DeletePrefix(ctx, prefix)
}

type scoped struct {
	Cache
	prefix string
}

// Scope returns a view of c where every key is stored as namespace + ":" +
// key, so instances with different namespaces can share one cache server.
// Close on the view closes c.
func Scope(c Cache, namespace string) Cache {
	if namespace == "" {
		return c
	}
	return &scoped{Cache: c, prefix: namespace + ":"}
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.Cache.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Cache.Set(ctx, s.prefix+key, value, ttl)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.Cache.Delete(ctx, s.prefix+key)
}

func (s *scoped) Exists(ctx context.Context, key string) (bool, error) {
	return s.Cache.Exists(ctx, s.prefix+key)
}

func (s *scoped) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return DeletePrefix(ctx, s.Cache, s.prefix+prefix)
}
