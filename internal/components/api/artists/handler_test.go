package artists_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	artistsapi "github.com/artfolio/artfolio-sync/internal/components/api/artists"
	"github.com/artfolio/artfolio-sync/internal/components/artists"
	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	memcache "github.com/artfolio/artfolio-sync/internal/platform/cache/memory"
	"github.com/artfolio/artfolio-sync/internal/platform/http/auth"
	"github.com/artfolio/artfolio-sync/internal/platform/store/memory"
)

func newTestRouter(t *testing.T) (http.Handler, *social.Graph) {
	t.Helper()
	s := memory.New()
	bus := eventbus.New(nil)
	graph := social.New(social.Deps{Store: s, Bus: bus})
	c := memcache.New(time.Minute, 0)
	t.Cleanup(func() { c.Close() })

	dir, err := artists.New(artists.Deps{Store: s, Cache: c, Counts: graph, Bus: bus, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	dir.Start()
	t.Cleanup(dir.Stop)

	h := artistsapi.NewHandler(dir, nil)
	r := chi.NewRouter()
	r.Use(auth.NewActorMiddleware(auth.ActorConfig{DevHeader: true}))
	r.Get("/api/artists/{userId}", h.HandleSummary)
	r.Get("/api/artists/{userId}/profile", h.HandleProfile)
	r.Put("/api/profile", h.HandleSetProfile)
	return r, graph
}

func do(t *testing.T, h http.Handler, method, path, actor string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(auth.DevActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return rec.Code
}

func TestSummaryFollowsProfileAndGraph(t *testing.T) {
	h, graph := newTestRouter(t)

	var s artists.Summary
	if code := do(t, h, http.MethodGet, "/api/artists/star", "", nil, &s); code != http.StatusOK {
		t.Fatalf("summary: %d", code)
	}
	if s.ID != "star" || s.FollowerCount != 0 || s.DisplayName != "" {
		t.Errorf("initial summary = %+v", s)
	}

	in := artistsapi.ProfileInput{DisplayName: "Star", AvatarURL: "https://img.example/star.png"}
	if code := do(t, h, http.MethodPut, "/api/profile", "star", in, nil); code != http.StatusOK {
		t.Fatalf("set profile: %d", code)
	}
	graph.Follow(t.Context(), "fan", "star")

	do(t, h, http.MethodGet, "/api/artists/star", "", nil, &s)
	if s.DisplayName != "Star" || s.FollowerCount != 1 {
		t.Errorf("summary served stale data: %+v", s)
	}

	var p artists.Profile
	do(t, h, http.MethodGet, "/api/artists/star/profile", "", nil, &p)
	if p.UserID != "star" || p.AvatarURL != in.AvatarURL {
		t.Errorf("profile = %+v", p)
	}
}

func TestProfileErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	if code := do(t, h, http.MethodGet, "/api/artists/nobody/profile", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing profile: %d", code)
	}
	if code := do(t, h, http.MethodPut, "/api/profile", "", artistsapi.ProfileInput{DisplayName: "x"}, nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous set: %d", code)
	}
	bad := artistsapi.ProfileInput{AvatarURL: "not a url"}
	if code := do(t, h, http.MethodPut, "/api/profile", "star", bad, nil); code != http.StatusBadRequest {
		t.Errorf("invalid avatar: %d", code)
	}
}
