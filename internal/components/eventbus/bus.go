// Package eventbus is the in-process publish/subscribe channel that carries
// state changes between the social components and the views observing them.
//
// Delivery is synchronous and in registration order. Publish snapshots the
// subscriber list, so a handler registered during a dispatch never sees that
// event, while a handler unsubscribed during a dispatch is skipped if it has
// not run yet. Nothing is persisted or replayed.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
)

// Event is one published occurrence of a topic.
type Event struct {
	Topic  Topic
	Detail any
}

// Handler receives events for the topic it subscribed to.
type Handler func(ctx context.Context, ev Event)

// Subscription is a registered handler. Unsubscribe releases it.
type Subscription struct {
	bus    *Bus
	topic  Topic
	id     uint64
	fn     Handler
	active atomic.Bool
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() Topic { return s.topic }

// Unsubscribe removes the handler. Safe to call more than once and from
// inside a handler, including the handler being removed.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.remove(s)
}

// Bus is a topic-keyed observer registry.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Topic][]*Subscription
	nextID  uint64
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics counts published events and recovered handler panics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New creates an empty bus.
func New(log *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[Topic][]*Subscription),
		log:  logutil.NoopIfNil(log),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for topic.
func (b *Bus) Subscribe(topic Topic, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, topic: topic, id: b.nextID, fn: fn}
	sub.active.Store(true)
	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id != sub.id {
			continue
		}
		// Copy instead of shifting in place: an in-flight Publish may still
		// be iterating over the old slice.
		next := make([]*Subscription, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, sub.topic)
		} else {
			b.subs[sub.topic] = next
		}
		return
	}
}

// Publish delivers detail to every handler subscribed to topic at the time
// of the call. It returns after the last handler has run.
func (b *Bus) Publish(ctx context.Context, topic Topic, detail any) {
	b.mu.RLock()
	snapshot := b.subs[topic]
	b.mu.RUnlock()

	b.metrics.EventPublished(string(topic))
	ev := Event{Topic: topic, Detail: detail}
	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		b.dispatch(ctx, sub, ev)
	}
}

func (b *Bus) dispatch(ctx context.Context, sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.HandlerPanicked(string(ev.Topic))
			b.log.Error("event handler panicked",
				"topic", ev.Topic,
				"subscription", sub.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.fn(ctx, ev)
}

// SubscriberCount returns the number of live subscriptions for topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// On subscribes a handler that only receives details of type T. Events
// whose detail has another type are logged and dropped.
func On[T any](b *Bus, topic Topic, fn func(ctx context.Context, detail T)) *Subscription {
	return b.Subscribe(topic, func(ctx context.Context, ev Event) {
		d, ok := ev.Detail.(T)
		if !ok {
			b.log.Warn("event detail type mismatch",
				"topic", ev.Topic,
				"got", fmt.Sprintf("%T", ev.Detail),
			)
			return
		}
		fn(ctx, d)
	})
}
