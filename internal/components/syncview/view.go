// Package syncview keeps derived state of independently rendered views
// consistent by re-querying on bus events.
//
// A view subscribes to its topics on Mount and re-reads its source of truth
// whenever a relevant event fires. Event payloads only select which views
// refresh; they are never copied into view state, because another writer may
// have changed the subject between the publish and the delivery.
package syncview

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// ErrNotMounted is returned by Refresh on a view that was never mounted or
// was already unmounted.
var ErrNotMounted = errors.New("view not mounted")

// View is implemented by every synchronized view.
type View interface {
	Mount(ctx context.Context) error
	Refresh(ctx context.Context) error
	Unmount()
}

// view holds the subscription and state bookkeeping shared by all views.
type view[S any] struct {
	name string
	bus  *eventbus.Bus
	log  *slog.Logger
	load func(ctx context.Context) (S, error)

	mu       sync.Mutex
	state    S
	loaded   bool
	mounted  bool
	subs     []*eventbus.Subscription
	onChange func(S)
}

func newView[S any](name string, bus *eventbus.Bus, log *slog.Logger, load func(ctx context.Context) (S, error)) *view[S] {
	return &view[S]{
		name: name,
		bus:  bus,
		log:  logutil.NoopIfNil(log).With("view", name),
		load: load,
	}
}

// mount registers subscribe's subscriptions and performs the first refresh.
// A failed first refresh leaves the view mounted with its zero state.
func (v *view[S]) mount(ctx context.Context, subscribe func() []*eventbus.Subscription) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.mounted = true
	if v.bus != nil {
		v.subs = subscribe()
	}
	v.mu.Unlock()

	return v.Refresh(ctx)
}

// Unmount releases every subscription. Further events are ignored.
func (v *view[S]) Unmount() {
	v.mu.Lock()
	subs := v.subs
	v.subs = nil
	v.mounted = false
	v.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Refresh re-reads the state. On failure the previous state is kept.
func (v *view[S]) Refresh(ctx context.Context) error {
	v.mu.Lock()
	mounted := v.mounted
	v.mu.Unlock()
	if !mounted {
		return ErrNotMounted
	}

	s, err := v.load(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.state = s
	v.loaded = true
	cb := v.onChange
	v.mu.Unlock()

	if cb != nil {
		cb(s)
	}
	return nil
}

// refreshOnEvent is the event path of Refresh: failures are logged.
func (v *view[S]) refreshOnEvent(ctx context.Context, topic eventbus.Topic) {
	err := v.Refresh(ctx)
	if err != nil && !errors.Is(err, ErrNotMounted) {
		v.log.Warn("view refresh failed", "topic", string(topic), "error", err)
	}
}

// Snapshot returns the last successfully loaded state, and whether any load
// has succeeded yet.
func (v *view[S]) Snapshot() (S, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.loaded
}

// OnChange sets a callback run after every successful refresh.
func (v *view[S]) OnChange(fn func(S)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Mounted reports whether the view holds its subscriptions.
func (v *view[S]) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}
