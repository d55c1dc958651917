package store

import (
	"context"
	"strings"
)

// Separator joins a namespace and a key.
const Separator = ":"

type scoped struct {
	parent Store
	prefix string
}

// Scope returns a view of s where every key is stored as namespace + ":" + key.
// Keys on the view lists only keys inside the namespace, with the prefix stripped.
// Scopes nest: Scope(Scope(s, "a"), "b") stores under "a:b:key".
func Scope(s Store, namespace string) Store {
	if namespace == "" {
		return s
	}
	return &scoped{parent: s, prefix: namespace + Separator}
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.parent.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.parent.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Remove(ctx context.Context, key string) error {
	return s.parent.Remove(ctx, s.prefix+key)
}

func (s *scoped) Keys(ctx context.Context) ([]string, error) {
	all, err := s.parent.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, s.prefix); ok {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}

// Purge removes every key visible through s. It is the bulk reset used by
// test and maintenance tooling; it is not atomic.
func Purge(ctx context.Context, s Store) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
