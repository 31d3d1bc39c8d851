package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler receives the raw payload of one inbound event. Handlers run
// sequentially on the read loop; the client is fully event-driven with no
// parallel dispatch.
type Handler func(data json.RawMessage)

// Channel defines what the phase controllers need from the realtime
// connection.
type Channel interface {
	// Emit sends a fire-and-forget event. It never blocks and is never
	// retried; a lost request is superseded by the next authoritative
	// snapshot from the server.
	Emit(event string, payload interface{})

	// Subscribe registers a handler for an event and returns the
	// unsubscribe capability for that exact registration.
	Subscribe(event string, h Handler) func()

	// SubscribeState registers a connectivity listener. It is invoked with
	// true/false on every connect/disconnect edge.
	SubscribeState(h func(connected bool)) func()

	// Connected reports current connectivity.
	Connected() bool
}

// Config holds configuration for the realtime connection
type Config struct {
	URL           string
	Token         string
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	ReconnectWait time.Duration
	SendBuffer    int
}

// DefaultConfig returns default connection configuration
func DefaultConfig(url, token string) Config {
	return Config{
		URL:           url,
		Token:         token,
		DialTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
		ReconnectWait: 2 * time.Second,
		SendBuffer:    256,
	}
}

// frame is the wire envelope for every message in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type subscription struct {
	event   string
	handler Handler
}

type stateSub struct {
	handler func(bool)
}

// Conn maintains the single long-lived realtime channel for the process.
// The auth token is captured once at construction and reused verbatim on
// every reconnect attempt, even if the token has rotated since; flagged for
// product review, preserved as observed behavior.
//
// Reconnection is automatic and transparent: connection errors are logged
// and surface to controllers only as a connected=false edge, never as a
// terminal failure.
type Conn struct {
	cfg Config
	id  string

	mu        sync.RWMutex
	connected bool
	subs      map[string][]*subscription
	stateSubs []*stateSub

	sendCh chan frame
}

var _ Channel = (*Conn)(nil)

// New creates a realtime connection manager. No I/O happens until Run.
func New(cfg Config) *Conn {
	return &Conn{
		cfg:    cfg,
		id:     uuid.New().String()[:8],
		subs:   make(map[string][]*subscription),
		sendCh: make(chan frame, cfg.SendBuffer),
	}
}

// Connected reports whether the channel is currently established.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Emit queues an outbound event. A nil payload sends an empty object.
func (c *Conn) Emit(event string, payload interface{}) {
	data := json.RawMessage("{}")
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("event", event).Msg("failed to marshal outbound payload")
			return
		}
		data = encoded
	}

	select {
	case c.sendCh <- frame{Event: event, Data: data}:
	default:
		log.Warn().Str("conn_id", c.id).Str("event", event).Msg("send buffer full, dropping event")
	}
}

// Subscribe registers a handler for an event. The returned func removes
// exactly this registration, so remounting a controller never leaves a
// duplicate handler behind.
func (c *Conn) Subscribe(event string, h Handler) func() {
	sub := &subscription{event: event, handler: h}

	c.mu.Lock()
	c.subs[event] = append(c.subs[event], sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		handlers := c.subs[event]
		for i, s := range handlers {
			if s == sub {
				c.subs[event] = append(handlers[:i], handlers[i+1:]...)
				return
			}
		}
	}
}

// SubscribeState registers a connectivity listener.
func (c *Conn) SubscribeState(h func(connected bool)) func() {
	sub := &stateSub{handler: h}

	c.mu.Lock()
	c.stateSubs = append(c.stateSubs, sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.stateSubs {
			if s == sub {
				c.stateSubs = append(c.stateSubs[:i], c.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// Run dials the server and keeps the connection alive until ctx is
// cancelled, reconnecting with a fixed wait after every drop.
func (c *Conn) Run(ctx context.Context) {
	log.Info().Str("conn_id", c.id).Str("url", c.cfg.URL).Msg("realtime connection manager started")

	for {
		if err := c.runOnce(ctx); err != nil {
			log.Error().Err(err).Str("conn_id", c.id).Msg("realtime connection lost")
		}

		select {
		case <-ctx.Done():
			log.Info().Str("conn_id", c.id).Msg("realtime connection manager shutting down")
			return
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

// runOnce performs a single dial/read cycle.
func (c *Conn) runOnce(ctx context.Context) error {
	dialer := &websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	defer ws.Close()

	c.setConnected(true)
	defer c.setConnected(false)

	done := make(chan struct{})
	defer close(done)
	go c.writePump(ws, done)

	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close")
			}
			return err
		}
		c.dispatch(f)
	}
}

// writePump drains queued outbound frames onto one websocket epoch.
func (c *Conn) writePump(ws *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case f := <-c.sendCh:
			ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := ws.WriteJSON(f); err != nil {
				log.Error().Err(err).Str("conn_id", c.id).Str("event", f.Event).Msg("failed to write event")
				return
			}
			log.Debug().Str("conn_id", c.id).Str("event", f.Event).Msg("event emitted")
		}
	}
}

// dispatch delivers one inbound frame to every handler registered for its
// event, in registration order.
func (c *Conn) dispatch(f frame) {
	c.mu.RLock()
	handlers := make([]*subscription, len(c.subs[f.Event]))
	copy(handlers, c.subs[f.Event])
	c.mu.RUnlock()

	if len(handlers) == 0 {
		log.Debug().Str("conn_id", c.id).Str("event", f.Event).Msg("no handlers for event")
		return
	}

	for _, sub := range handlers {
		sub.handler(f.Data)
	}
}

func (c *Conn) setConnected(connected bool) {
	c.mu.Lock()
	if c.connected == connected {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	listeners := make([]*stateSub, len(c.stateSubs))
	copy(listeners, c.stateSubs)
	c.mu.Unlock()

	log.Info().Str("conn_id", c.id).Bool("connected", connected).Msg("connectivity changed")
	for _, sub := range listeners {
		sub.handler(connected)
	}
}
