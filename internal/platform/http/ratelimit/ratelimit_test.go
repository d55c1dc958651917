package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rps float64, burst int) (*Limiter, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(Config{RequestsPerSecond: rps, Burst: burst}, nil)
	l.now = c.now
	return l, c
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, c := newTestLimiter(1, 3)

	for i := range 3 {
		if ok, _ := l.Allow("k"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := l.Allow("k")
	if ok {
		t.Fatal("expected the bucket to be empty")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %s", wait)
	}

	c.advance(time.Second)
	if ok, _ := l.Allow("k"); !ok {
		t.Error("expected one token after a second")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	l.Allow("a")
	if ok, _ := l.Allow("b"); !ok {
		t.Error("caller b throttled by caller a")
	}
}

func TestAllow_IdleBucketsAreDropped(t *testing.T) {
	l, c := newTestLimiter(1, 1)
	l.cfg.IdleTTL = time.Minute

	l.Allow("a")
	l.Allow("b")
	c.advance(2 * time.Minute)
	l.Allow("c")

	if n := l.Len(); n != 1 {
		t.Errorf("expected only the fresh bucket, got %d", n)
	}
}

func TestWrap(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	h := l.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/follows/b", nil)
		req.RemoteAddr = "192.0.2.1:1000"
		req = req.WithContext(identity.WithActor(req.Context(), actor))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("olga"); rr.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", rr.Code)
	}
	rr := send("olga")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if s, err := strconv.Atoi(rr.Header().Get("Retry-After")); err != nil || s < 1 {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	var env api.ErrorEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error.ReasonCode != api.ReasonRateLimited {
		t.Errorf("reason_code = %q", env.Error.ReasonCode)
	}

	// Another actor on the same address has its own bucket.
	if rr := send("ivan"); rr.Code != http.StatusNoContent {
		t.Errorf("other actor throttled: %d", rr.Code)
	}
	// Anonymous callers share the address bucket.
	if rr := send(""); rr.Code != http.StatusNoContent {
		t.Errorf("anonymous caller: %d", rr.Code)
	}
	if rr := send(""); rr.Code != http.StatusTooManyRequests {
		t.Errorf("anonymous caller not throttled: %d", rr.Code)
	}
}

func TestCallerKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	if k := CallerKey(req); k != "ip:198.51.100.4" {
		t.Errorf("anonymous key = %q", k)
	}
	req = req.WithContext(identity.WithActor(req.Context(), "olga"))
	if k := CallerKey(req); k != "actor:olga" {
		t.Errorf("actor key = %q", k)
	}
}

func TestWithKeyFunc(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	global := l.WithKeyFunc(func(*http.Request) string { return "all" })
	global.Allow("all")
	if ok, _ := l.Allow("all"); !ok {
		t.Error("derived limiter shares buckets with its parent")
	}
}
