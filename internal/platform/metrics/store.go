package metrics

import (
	"context"
	"time"

	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

type instrumented struct {
	next store.Store
	m    *Metrics
}

// InstrumentStore wraps s so every operation is timed. A nil m returns s.
func InstrumentStore(s store.Store, m *Metrics) store.Store {
	if m == nil {
		return s
	}
	return &instrumented{next: s, m: m}
}

func (i *instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := i.next.Get(ctx, key)
	i.m.StoreOp("get", time.Since(start), err)
	return v, ok, err
}

func (i *instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	i.m.StoreOp("set", time.Since(start), err)
	return err
}

func (i *instrumented) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Remove(ctx, key)
	i.m.StoreOp("remove", time.Since(start), err)
	return err
}

func (i *instrumented) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := i.next.Keys(ctx)
	i.m.StoreOp("keys", time.Since(start), err)
	return keys, err
}
