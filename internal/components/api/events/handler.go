// Package events forwards event bus traffic to browsers over a websocket so
// remote views can refresh the same way in-process views do.
//
// Payloads are hints. A client that falls behind is disconnected with
// close code 1013 and is expected to reconnect and re-query.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/platform/appctx"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
)

// Config configures the forwarder.
type Config struct {
	// AllowedOrigins lists Origin values accepted on upgrade. "*" accepts
	// any origin. Empty means same-origin only.
	AllowedOrigins []string

	// QueueSize bounds the events buffered per connection. Default: 64.
	QueueSize int

	// PingInterval is how often the server pings. A client that has not
	// answered within two intervals is dropped. Default: 30s.
	PingInterval time.Duration

	// WriteTimeout bounds each frame write. Default: 10s.
	WriteTimeout time.Duration
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Message is one forwarded event.
type Message struct {
	Topic  eventbus.Topic `json:"topic"`
	Detail any            `json:"detail"`
}

// Handler upgrades GET /api/events.
type Handler struct {
	bus      *eventbus.Bus
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *slog.Logger

	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewHandler creates the forwarder.
func NewHandler(bus *eventbus.Bus, cfg Config, m *metrics.Metrics, log *slog.Logger) *Handler {
	cfg.ApplyDefaults()
	h := &Handler{
		bus:      bus,
		cfg:      cfg,
		metrics:  m,
		log:      logutil.NoopIfNil(log),
		shutdown: make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Close ends every open stream with a going-away close frame and refuses
// new ones.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// parseTopics reads the comma separated topics query parameter. Empty means
// every topic.
func parseTopics(raw string) ([]eventbus.Topic, bool) {
	if strings.TrimSpace(raw) == "" {
		return eventbus.Topics, true
	}
	var out []eventbus.Topic
	for _, part := range strings.Split(raw, ",") {
		t, ok := eventbus.ParseTopic(strings.TrimSpace(part))
		if !ok {
			return nil, false
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, true
}

// visible reports whether actorID may see ev. Request traffic is limited to
// the two parties and unread counts to their recipient.
func visible(ev eventbus.Event, actorID string) bool {
	switch d := ev.Detail.(type) {
	case notifications.UnreadChanged:
		return actorID != "" && d.UserID == actorID
	case requests.Created:
		return party(d.Request, actorID)
	case requests.StatusChanged:
		return party(d.Request, actorID)
	}
	return true
}

func party(r requests.Request, actorID string) bool {
	return actorID != "" && (r.OwnerID == actorID || r.RequesterID == actorID)
}

// HandleEvents handles GET /api/events?topics=a,b.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context(), h.log)
	topics, ok := parseTopics(r.URL.Query().Get("topics"))
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "unknown topic")
		return
	}
	actorID, _ := identity.ActorFromContext(r.Context())

	select {
	case <-h.shutdown:
		api.WriteError(w, http.StatusServiceUnavailable, api.ReasonInternalError, "server is shutting down")
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	h.metrics.WebsocketConnected()
	defer h.metrics.WebsocketDisconnected()

	c := &client{
		conn:     conn,
		queue:    make(chan Message, h.cfg.QueueSize),
		overflow: make(chan struct{}),
		log:      log,
	}

	subs := make([]*eventbus.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, h.bus.Subscribe(t, func(_ context.Context, ev eventbus.Event) {
			if visible(ev, actorID) {
				c.enqueue(Message{Topic: ev.Topic, Detail: ev.Detail})
			}
		}))
	}
	log.Debug("event stream opened", "topics", len(subs))

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(done, h.shutdown, h.cfg.PingInterval, h.cfg.WriteTimeout)
	}()

	c.readLoop(2 * h.cfg.PingInterval)

	for _, s := range subs {
		s.Unsubscribe()
	}
	close(done)
	<-writerDone
	conn.Close()
	log.Debug("event stream closed")
}

type client struct {
	conn     *websocket.Conn
	queue    chan Message
	overflow chan struct{}
	once     sync.Once
	log      *slog.Logger
}

// enqueue never blocks the publisher. A full queue marks the client as
// overflowed.
func (c *client) enqueue(m Message) {
	select {
	case c.queue <- m:
	default:
		c.once.Do(func() { close(c.overflow) })
	}
}

// readLoop discards client frames and returns when the connection fails or
// the peer stops answering pings.
func (c *client) readLoop(pongWait time.Duration) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("event stream read failed", "error", err)
			}
			return
		}
	}
}

// writeLoop is the only writer on the connection. On a write failure, an
// overflow or shutdown it closes the connection, which ends readLoop.
func (c *client) writeLoop(done, shutdown <-chan struct{}, pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case <-shutdown:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			c.conn.Close()
			return
		case <-c.overflow:
			c.log.Warn("event stream client too slow, disconnecting")
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event queue overflow"),
				time.Now().Add(writeTimeout))
			c.conn.Close()
			return
		case m := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(m); err != nil {
				c.log.Debug("event stream write failed", "error", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
