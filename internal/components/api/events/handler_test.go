package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	"github.com/artfolio/artfolio-sync/internal/platform/http/auth"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
)

type received struct {
	Topic  eventbus.Topic  `json:"topic"`
	Detail json.RawMessage `json:"detail"`
}

func newServer(t *testing.T, cfg Config) (*httptest.Server, *eventbus.Bus, *metrics.Metrics) {
	t.Helper()
	bus := eventbus.New(nil)
	m := metrics.New()
	h := NewHandler(bus, cfg, m, nil)
	mw := auth.NewActorMiddleware(auth.ActorConfig{DevHeader: true})
	srv := httptest.NewServer(mw(http.HandlerFunc(h.HandleEvents)))
	t.Cleanup(srv.Close)
	return srv, bus, m
}

func dial(t *testing.T, srv *httptest.Server, query, actor string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if actor != "" {
		header.Set(auth.DevActorHeader, actor)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v (response %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitSubscribers waits until the server side has registered n handlers on
// topic, since Dial returns before the handler subscribes.
func waitSubscribers(t *testing.T, bus *eventbus.Bus, topic eventbus.Topic, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount(topic) != n {
		if time.Now().After(deadline) {
			t.Fatalf("%s: %d subscribers, want %d", topic, bus.SubscriberCount(topic), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func clients(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "artfolio_events_websocket_clients" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestForwardsSubscribedTopics(t *testing.T) {
	srv, bus, m := newServer(t, Config{})
	conn := dial(t, srv, "?topics=follow:changed", "")
	waitSubscribers(t, bus, eventbus.TopicFollowChanged, 1)

	if n := clients(t, m); n != 1 {
		t.Errorf("websocket client gauge = %v", n)
	}

	ctx := context.Background()
	bus.Publish(ctx, eventbus.TopicFavoriteChanged, social.FavoriteChanged{ItemID: "w1"})
	bus.Publish(ctx, eventbus.TopicFollowChanged, social.FollowChanged{FollowerID: "a", FollowingID: "b", IsFollowing: true, Count: 1})

	msg := read(t, conn)
	if msg.Topic != eventbus.TopicFollowChanged {
		t.Fatalf("topic = %s", msg.Topic)
	}
	var detail social.FollowChanged
	if err := json.Unmarshal(msg.Detail, &detail); err != nil {
		t.Fatal(err)
	}
	if detail.FollowingID != "b" || detail.Count != 1 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestReleasesSubscriptionsOnClose(t *testing.T) {
	srv, bus, m := newServer(t, Config{})
	conn := dial(t, srv, "", "")
	for _, topic := range eventbus.Topics {
		waitSubscribers(t, bus, topic, 1)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	for _, topic := range eventbus.Topics {
		waitSubscribers(t, bus, topic, 0)
	}
	deadline := time.Now().Add(2 * time.Second)
	for clients(t, m) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := clients(t, m); n != 0 {
		t.Errorf("websocket client gauge after close = %v", n)
	}
}

func TestPrivateEventsReachOnlyTheirParties(t *testing.T) {
	srv, bus, _ := newServer(t, Config{})
	owner := dial(t, srv, "?topics=request:created,notification:unreadChanged", "o1")
	stranger := dial(t, srv, "?topics=request:created,notification:unreadChanged,follow:changed", "x")
	waitSubscribers(t, bus, eventbus.TopicRequestCreated, 2)
	waitSubscribers(t, bus, eventbus.TopicFollowChanged, 1)

	ctx := context.Background()
	req := requests.Request{ID: "r", OwnerID: "o1", RequesterID: "r1", Message: "private"}
	bus.Publish(ctx, eventbus.TopicRequestCreated, requests.Created{Request: req})
	bus.Publish(ctx, eventbus.TopicUnreadChanged, notifications.UnreadChanged{UserID: "o1"})
	bus.Publish(ctx, eventbus.TopicFollowChanged, social.FollowChanged{FollowerID: "a", FollowingID: "b"})

	if msg := read(t, owner); msg.Topic != eventbus.TopicRequestCreated {
		t.Errorf("owner first message = %s", msg.Topic)
	}
	if msg := read(t, owner); msg.Topic != eventbus.TopicUnreadChanged {
		t.Errorf("owner second message = %s", msg.Topic)
	}
	// The stranger's first frame is the public follow event.
	if msg := read(t, stranger); msg.Topic != eventbus.TopicFollowChanged {
		t.Errorf("stranger received %s", msg.Topic)
	}
}

func TestRejectsUnknownTopic(t *testing.T) {
	srv, _, _ := newServer(t, Config{})
	resp, err := http.Get(srv.URL + "/api/events?topics=nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{nil, "", "api.example", true},
		{nil, "https://api.example", "api.example", true},
		{nil, "https://evil.example", "api.example", false},
		{[]string{"https://app.example"}, "https://app.example", "api.example", true},
		{[]string{"*"}, "https://anything.example", "api.example", true},
	}
	for _, tt := range tests {
		h := NewHandler(eventbus.New(nil), Config{AllowedOrigins: tt.allowed}, nil, nil)
		r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := h.checkOrigin(r); got != tt.want {
			t.Errorf("origin %q allowed=%v: got %v", tt.origin, tt.allowed, got)
		}
	}
}

func TestSlowClientIsDisconnected(t *testing.T) {
	c := &client{queue: make(chan Message, 1), overflow: make(chan struct{})}
	c.enqueue(Message{Topic: eventbus.TopicFollowChanged})
	c.enqueue(Message{Topic: eventbus.TopicFollowChanged})
	c.enqueue(Message{Topic: eventbus.TopicFollowChanged})

	select {
	case <-c.overflow:
	default:
		t.Fatal("overflow not signalled")
	}
	if len(c.queue) != 1 {
		t.Errorf("queue len = %d", len(c.queue))
	}
}

func TestParseTopics(t *testing.T) {
	all, ok := parseTopics("")
	if !ok || len(all) != len(eventbus.Topics) {
		t.Errorf("empty = %v", all)
	}
	got, ok := parseTopics("follow:changed, follow:changed,profile:changed")
	if !ok || len(got) != 2 {
		t.Errorf("dedup = %v", got)
	}
	if _, ok := parseTopics("follow:changed,bogus"); ok {
		t.Error("bogus topic accepted")
	}
}

func TestCloseEndsOpenStreams(t *testing.T) {
	bus := eventbus.New(nil)
	h := NewHandler(bus, Config{}, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleEvents))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "?topics=follow:changed", "")
	waitSubscribers(t, bus, eventbus.TopicFollowChanged, 1)

	h.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
	waitSubscribers(t, bus, eventbus.TopicFollowChanged, 0)

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("after Close: %d", resp.StatusCode)
	}
}
