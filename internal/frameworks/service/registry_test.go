package service

import (
	"log/slog"
	"net/http"
	"slices"
	"testing"
)

type stubService struct{ prefix string }

func (s *stubService) Handler() http.Handler { return http.NotFoundHandler() }
func (s *stubService) Prefix() string        { return s.prefix }
func (s *stubService) Close() error          { return nil }

func newStub(conf map[string]any, log *slog.Logger) (Service, error) {
	prefix, _ := conf["prefix"].(string)
	return &stubService{prefix: prefix}, nil
}

func TestRegisterAndGet(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	if err := Register("stub", newStub); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	ctor := Get("stub")
	if ctor == nil {
		t.Fatal("Get returned nil for a registered service")
	}
	svc, err := ctor(map[string]any{"prefix": "api"}, nil)
	if err != nil || svc.Prefix() != "api" {
		t.Errorf("constructed %v, %v", svc, err)
	}
	if Get("missing") != nil {
		t.Error("expected nil for an unregistered service")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	if err := Register("dup", newStub); err != nil {
		t.Fatal(err)
	}
	if err := Register("dup", newStub); err == nil {
		t.Fatal("expected an error on duplicate registration")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on duplicate")
		}
	}()
	MustRegister("dup", newStub)
}

func TestRegisteredServices_Sorted(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	for _, n := range []string{"svc-c", "svc-a", "svc-b"} {
		MustRegister(n, newStub)
	}
	if got := RegisteredServices(); !slices.Equal(got, []string{"svc-a", "svc-b", "svc-c"}) {
		t.Errorf("RegisteredServices = %v", got)
	}
}
