package syncview

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Session groups the views of one open page so they mount, refresh and
// unmount together.
type Session struct {
	mu    sync.Mutex
	views []View
}

// NewSession creates a session over views.
func NewSession(views ...View) *Session {
	return &Session{views: views}
}

// Add appends views. They are not mounted until the next Mount.
func (s *Session) Add(views ...View) {
	s.mu.Lock()
	s.views = append(s.views, views...)
	s.mu.Unlock()
}

func (s *Session) snapshot() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]View(nil), s.views...)
}

// Mount mounts every view concurrently. Views stay mounted even when their
// first load fails; the first error is returned.
func (s *Session) Mount(ctx context.Context) error {
	return s.each(ctx, func(ctx context.Context, v View) error { return v.Mount(ctx) })
}

// Refresh re-reads every view concurrently and returns the first error.
func (s *Session) Refresh(ctx context.Context) error {
	return s.each(ctx, func(ctx context.Context, v View) error { return v.Refresh(ctx) })
}

func (s *Session) each(ctx context.Context, fn func(ctx context.Context, v View) error) error {
	var g errgroup.Group
	for _, v := range s.snapshot() {
		g.Go(func() error { return fn(ctx, v) })
	}
	return g.Wait()
}

// Close unmounts every view.
func (s *Session) Close() {
	for _, v := range s.snapshot() {
		v.Unmount()
	}
}
