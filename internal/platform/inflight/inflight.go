// Package inflight rejects duplicate concurrent operations on the same subject.
//
// A subject is held from Acquire until the returned release runs, the caller's
// context ends, or MaxHold elapses, whichever comes first. A second Acquire for
// a held subject fails immediately with ErrBusy; it is never queued.
package inflight

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// ErrBusy is returned when the subject is already held.
var ErrBusy = errors.New("operation already in flight")

// DefaultMaxHold applies when New is given a non-positive duration.
const DefaultMaxHold = 30 * time.Second

// Key builds a subject key from scope and parts. Each part is length
// prefixed, so ids containing separators cannot make two subjects collide.
func Key(scope string, parts ...string) string {
	var b strings.Builder
	b.WriteString(scope)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte('#')
		b.WriteString(p)
	}
	return b.String()
}

// Guard tracks held subjects.
type Guard struct {
	maxHold time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	held  map[string]uint64
	token uint64
}

// New creates a Guard.
func New(maxHold time.Duration, log *slog.Logger) *Guard {
	if maxHold <= 0 {
		maxHold = DefaultMaxHold
	}
	return &Guard{
		maxHold: maxHold,
		log:     logutil.NoopIfNil(log),
		held:    make(map[string]uint64),
	}
}

// Acquire holds key. The returned release is idempotent and only frees the
// subject if this call still owns it: after an expiry, a newer holder is
// never released by a stale caller.
func (g *Guard) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if _, busy := g.held[key]; busy {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	g.token++
	token := g.token
	g.held[key] = token
	g.mu.Unlock()

	timer := time.AfterFunc(g.maxHold, func() {
		if g.free(key, token) {
			g.log.Warn("in-flight hold expired", "key", key, "max_hold", g.maxHold)
		}
	})
	stopCtx := context.AfterFunc(ctx, func() {
		if g.free(key, token) {
			g.log.Debug("in-flight hold released by context", "key", key, "cause", context.Cause(ctx))
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			timer.Stop()
			stopCtx()
			g.free(key, token)
		})
	}, nil
}

// Do runs fn while holding key. fn's context is canceled when the hold
// expires so downstream calls stop with it.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.maxHold)
	defer cancel()

	release, err := g.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}

// Held reports whether key is currently held.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

// Len returns the number of held subjects.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

// free drops key if token still owns it and reports whether it did.
func (g *Guard) free(key string, token uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] != token {
		return false
	}
	delete(g.held, key)
	return true
}
