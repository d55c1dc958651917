// Package artists serves artist summaries: profile fields plus derived
// follow counts, memoized in a cache and invalidated by events.
//
// The cache owns no source data. A summary is dropped whenever a follow edge
// touching the artist changes or the artist's profile is rewritten, and is
// rebuilt from the store and the social graph on the next read.
package artists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/cache"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
	"github.com/artfolio/artfolio-sync/internal/platform/validation"
)

const (
	profilePrefix = "profiles/"
	cachePrefix   = "artist:"
)

// Profile holds the editable fields of an artist.
type Profile struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName" validate:"max=120"`
	AvatarURL   string    `json:"avatarUrl" validate:"omitempty,url,max=2048"`
	Bio         string    `json:"bio,omitempty" validate:"max=2000"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary is the cached projection served to profile cards.
type Summary struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	FollowerCount  int    `json:"followerCount"`
	FollowingCount int    `json:"followingCount"`
}

// ProfileChanged is the detail of profile:changed.
type ProfileChanged struct {
	UserID string `json:"userId"`
}

// Counter derives follow counts. *social.Graph implements it.
type Counter interface {
	FollowerCount(ctx context.Context, userID string) (int, error)
	FollowingCount(ctx context.Context, userID string) (int, error)
}

// Deps wires a Directory. Store, Cache and Counts are required.
type Deps struct {
	Store   store.Store
	Cache   cache.Cache
	Counts  Counter
	Bus     *eventbus.Bus
	TTL     time.Duration
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Directory reads and writes artist profiles and serves cached summaries.
type Directory struct {
	store   store.Store
	cache   cache.Cache
	counts  Counter
	bus     *eventbus.Bus
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger

	mu   sync.Mutex
	subs []*eventbus.Subscription

	// Invalidation epochs guard the window between reading counts and writing
	// the summary. While builds run, every invalidation records the sequence
	// number it happened at; a build that started earlier must not cache.
	epochMu sync.Mutex
	seq     uint64
	builds  int
	stale   map[string]uint64
	flushed uint64
}

// New creates a directory. Call Start to begin invalidating on events.
func New(d Deps) (*Directory, error) {
	if d.Store == nil || d.Cache == nil || d.Counts == nil {
		return nil, errors.New("artists: store, cache and counts are required")
	}
	return &Directory{
		store:   d.Store,
		cache:   d.Cache,
		counts:  d.Counts,
		bus:     d.Bus,
		ttl:     d.TTL,
		metrics: d.Metrics,
		log:     logutil.NoopIfNil(d.Log),
	}, nil
}

// Start subscribes the invalidation handlers. It is a no-op without a bus or
// when already started.
func (d *Directory) Start() {
	if d.bus == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.subs) > 0 {
		return
	}
	d.subs = append(d.subs,
		eventbus.On(d.bus, eventbus.TopicFollowChanged, func(ctx context.Context, ev social.FollowChanged) {
			d.Invalidate(ctx, ev.FollowerID)
			d.Invalidate(ctx, ev.FollowingID)
		}),
		eventbus.On(d.bus, eventbus.TopicProfileChanged, func(ctx context.Context, ev ProfileChanged) {
			d.Invalidate(ctx, ev.UserID)
		}),
	)
}

// Stop releases the invalidation handlers.
func (d *Directory) Stop() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// beginBuild registers a summary build and returns its starting sequence.
func (d *Directory) beginBuild() uint64 {
	d.epochMu.Lock()
	defer d.epochMu.Unlock()
	d.builds++
	return d.seq
}

// endBuild drops the recorded invalidations once no build can observe them.
func (d *Directory) endBuild() {
	d.epochMu.Lock()
	defer d.epochMu.Unlock()
	d.builds--
	if d.builds == 0 {
		d.stale = nil
	}
}

// markStale records an invalidation of userID, or of every user when userID
// is empty.
func (d *Directory) markStale(userID string) {
	d.epochMu.Lock()
	defer d.epochMu.Unlock()
	d.seq++
	if d.builds == 0 {
		return
	}
	if userID == "" {
		d.flushed = d.seq
		return
	}
	if d.stale == nil {
		d.stale = make(map[string]uint64)
	}
	d.stale[userID] = d.seq
}

// staleSince reports whether userID was invalidated after start.
func (d *Directory) staleSince(userID string, start uint64) bool {
	d.epochMu.Lock()
	defer d.epochMu.Unlock()
	return d.stale[userID] > start || d.flushed > start
}

// Invalidate drops the cached summary of userID. Cache failures are logged;
// the entry then expires by TTL.
func (d *Directory) Invalidate(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	d.markStale(userID)
	if err := d.cache.Delete(ctx, cachePrefix+userID); err != nil {
		d.log.Warn("failed to invalidate artist summary", "user_id", userID, "error", err)
	}
}

// Summary returns the summary of userID, from the cache when possible. An
// artist without a stored profile is served with empty profile fields.
func (d *Directory) Summary(ctx context.Context, userID string) (*Summary, error) {
	const op = "artists.summary"
	if userID == "" {
		return nil, apperr.New(apperr.KindValidation, op, "userId is required")
	}

	if raw, err := d.cache.Get(ctx, cachePrefix+userID); err == nil {
		var s Summary
		if err := json.Unmarshal(raw, &s); err == nil {
			d.metrics.CacheLookup(true)
			return &s, nil
		}
		d.log.Warn("discarding undecodable artist summary", "user_id", userID)
	} else if !errors.Is(err, cache.ErrNotFound) && !errors.Is(err, cache.ErrExpired) {
		d.log.Warn("artist cache read failed", "user_id", userID, "error", err)
	}
	d.metrics.CacheLookup(false)

	start := d.beginBuild()
	defer d.endBuild()

	s, err := d.build(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	d.remember(ctx, userID, start, s)
	return s, nil
}

// remember caches s unless userID was invalidated after start. An invalidation
// landing during the write is caught by the second check; one landing after
// it deletes the entry itself.
func (d *Directory) remember(ctx context.Context, userID string, start uint64, s *Summary) {
	if d.staleSince(userID, start) {
		d.log.Debug("skipping cache write of a superseded summary", "user_id", userID)
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	key := cachePrefix + userID
	if err := d.cache.Set(ctx, key, raw, d.ttl); err != nil {
		d.log.Warn("artist cache write failed", "user_id", userID, "error", err)
		return
	}
	if d.staleSince(userID, start) {
		if err := d.cache.Delete(ctx, key); err != nil {
			d.log.Warn("failed to drop superseded artist summary", "user_id", userID, "error", err)
		}
	}
}

// Flush drops every cached summary and returns how many entries were
// removed. It is run after the namespace is reset.
func (d *Directory) Flush(ctx context.Context) (int, error) {
	d.markStale("")
	n, err := cache.DeletePrefix(ctx, d.cache, cachePrefix)
	if err != nil {
		return n, fmt.Errorf("flush artist summaries: %w", err)
	}
	return n, nil
}

func (d *Directory) build(ctx context.Context, userID string) (*Summary, error) {
	p, err := d.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	followers, err := d.counts.FollowerCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	following, err := d.counts.FollowingCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		ID:             userID,
		FollowerCount:  followers,
		FollowingCount: following,
	}
	if p != nil {
		s.DisplayName = p.DisplayName
		s.AvatarURL = p.AvatarURL
	}
	return s, nil
}

func (d *Directory) profile(ctx context.Context, userID string) (*Profile, error) {
	raw, ok, err := d.store.Get(ctx, profilePrefix+userID)
	if err != nil || !ok {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, store.Fail("artists", "decode", profilePrefix+userID, err)
	}
	return &p, nil
}

// Profile returns the stored profile of userID.
func (d *Directory) Profile(ctx context.Context, userID string) (*Profile, error) {
	const op = "artists.profile"
	p, err := d.profile(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if p == nil {
		return nil, apperr.New(apperr.KindNotFound, op, "profile not found")
	}
	return p, nil
}

// SetProfile replaces the profile of p.UserID and publishes profile:changed.
func (d *Directory) SetProfile(ctx context.Context, p Profile) (*Profile, error) {
	const op = "artists.set_profile"
	if p.UserID == "" {
		return nil, apperr.New(apperr.KindAuthenticationRequired, op, "sign in to edit your profile")
	}
	if err := validation.Struct(op, p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if err := d.store.Set(ctx, profilePrefix+p.UserID, string(raw)); err != nil {
		return nil, apperr.Storage(op, err)
	}

	d.Invalidate(ctx, p.UserID)
	if d.bus != nil {
		d.bus.Publish(ctx, eventbus.TopicProfileChanged, ProfileChanged{UserID: p.UserID})
	}
	return &p, nil
}
