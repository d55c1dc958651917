// Package ratelimit throttles mutating API calls with a token bucket per
// caller.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/platform/http/middleware"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// Config defines the bucket of one caller.
type Config struct {
	RequestsPerSecond float64
	Burst             int

	// IdleTTL drops buckets of callers that have been quiet this long.
	IdleTTL time.Duration
}

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = int(math.Ceil(c.RequestsPerSecond))
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keys callers by actor id, or by client address for anonymous
// callers, so one actor cannot starve another behind the same address.
type Limiter struct {
	cfg     Config
	keyFunc func(*http.Request) string
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

// New creates a limiter.
func New(cfg Config, log *slog.Logger) *Limiter {
	cfg.ApplyDefaults()
	return &Limiter{
		cfg:     cfg,
		keyFunc: CallerKey,
		now:     time.Now,
		log:     logutil.NoopIfNil(log),
		buckets: make(map[string]*bucket),
	}
}

// CallerKey is the default key: "actor:<id>" or "ip:<addr>".
func CallerKey(r *http.Request) string {
	if id, ok := identity.ActorFromContext(r.Context()); ok {
		return "actor:" + id
	}
	return "ip:" + middleware.ClientIP(r)
}

// WithKeyFunc returns a new Limiter with a custom key function and its own
// buckets.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	nl := New(l.cfg, l.log)
	nl.keyFunc = fn
	nl.now = l.now
	return nl
}

// Allow takes one token from key's bucket. When the bucket is empty it
// reports how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > l.cfg.IdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		ok, wait := l.Allow(key)
		if !ok {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			l.log.Debug("rate limited", "key", key, "retry_after_s", retryAfter)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
