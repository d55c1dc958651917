package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
)

// logRecorder captures records together with the attributes attached
// through With, so request-scoped fields are visible.
type logRecorder struct {
	mu      *sync.Mutex
	records *[]logRecord
	attrs   []slog.Attr
}

type logRecord struct {
	message string
	attrs   map[string]any
}

func newLogRecorder() *logRecorder {
	return &logRecorder{mu: &sync.Mutex{}, records: &[]logRecord{}}
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attrs := make(map[string]any)
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	*r.records = append(*r.records, logRecord{message: rec.Message, attrs: attrs})
	return nil
}

func (r *logRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &logRecorder{mu: r.mu, records: r.records, attrs: merged}
}

func (r *logRecorder) WithGroup(string) slog.Handler { return r }

func (r *logRecorder) find(message string) *logRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range *r.records {
		if (*r.records)[i].message == message {
			rec := (*r.records)[i]
			return &rec
		}
	}
	return nil
}

func newRouter(logger *slog.Logger, trustProxy, withRequestLogger bool) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if trustProxy {
		r.Use(chimw.RealIP)
	}
	if withRequestLogger {
		r.Use(RequestLoggerMiddleware(logger))
	}
	r.Use(AccessLogMiddleware(logger))
	r.Use(chimw.Recoverer)
	return r
}

func TestAccessLog_RequiredFields(t *testing.T) {
	rec := newLogRecorder()
	r := newRouter(slog.New(rec), false, true)
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/test?secret=1", nil)
	req.RemoteAddr = "192.0.2.10:12345"
	r.ServeHTTP(httptest.NewRecorder(), req)

	line := rec.find("request")
	if line == nil {
		t.Fatal("expected a 'request' access log entry")
	}
	for _, field := range []string{"request_id", "method", "path", "client_ip", "status", "bytes", "duration_ms"} {
		if _, ok := line.attrs[field]; !ok {
			t.Errorf("missing access log field %q", field)
		}
	}
	if line.attrs["path"] != "/test" {
		t.Errorf("path = %v, query string must not be logged", line.attrs["path"])
	}
	if line.attrs["client_ip"] != "192.0.2.10" {
		t.Errorf("client_ip = %v", line.attrs["client_ip"])
	}
	if status, ok := line.attrs["status"].(int64); !ok || status != 200 {
		t.Errorf("status = %v (%T)", line.attrs["status"], line.attrs["status"])
	}
}

func TestRequestLogger_ProxyHeaders(t *testing.T) {
	for _, trust := range []bool{false, true} {
		rec := newLogRecorder()
		r := newRouter(slog.New(rec), trust, true)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		r.ServeHTTP(httptest.NewRecorder(), req)

		want := "10.0.0.1"
		if trust {
			want = "203.0.113.7"
		}
		if got := rec.find("request").attrs["client_ip"]; got != want {
			t.Errorf("trust=%v: client_ip = %v, want %s", trust, got, want)
		}
	}
}

func TestAccessLog_FallbackWithoutContextLogger(t *testing.T) {
	rec := newLogRecorder()
	r := newRouter(slog.New(rec), false, false)
	r.Post("/fallback", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/fallback", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	line := rec.find("request")
	if line == nil {
		t.Fatal("expected an access log entry without RequestLoggerMiddleware")
	}
	if line.attrs["method"] != "POST" || line.attrs["request_id"] == "" {
		t.Errorf("fallback fields = %v", line.attrs)
	}
}

func TestAccessLog_PanicIsLoggedAs500(t *testing.T) {
	rec := newLogRecorder()
	r := newRouter(slog.New(rec), false, true)
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	if status, _ := rec.find("request").attrs["status"].(int64); status != 500 {
		t.Errorf("access log status = %d", status)
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Post("/api/follows/{userId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/follows/"+id, nil))
	}

	n, err := testutil.GatherAndCount(m.Registry(), "artfolio_http_request_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected one series for the route pattern, got %d", n)
	}
}

func TestMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	h := MetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("handler not called")
	}
}
