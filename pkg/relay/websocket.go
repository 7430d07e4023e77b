package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 32
)

// WebSocketConfig configures the WebSocket relay.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// subscription is a client request to narrow or widen its stream.
type subscription struct {
	Type   string `json:"type"`
	Signal string `json:"signal"`
}

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	mu      sync.RWMutex
	signals map[string]struct{}
}

func newWSClient(conn *websocket.Conn, signals []string) *wsClient {
	c := &wsClient{
		conn:    conn,
		send:    make(chan []byte, defaultSendBuffer),
		signals: make(map[string]struct{}),
	}
	for _, name := range signals {
		c.subscribe(name)
	}
	return c
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *wsClient) subscribe(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals[name] = struct{}{}
}

func (c *wsClient) unsubscribe(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.signals, strings.TrimSpace(name))
}

// wants reports whether the client receives readings of name. A client
// without subscriptions receives everything.
func (c *wsClient) wants(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.signals) == 0 {
		return true
	}
	_, ok := c.signals[name]
	return ok
}

// WebSocket streams accepted readings to WebSocket clients. It is both a
// Relay and the http.Handler that accepts the clients.
//
// Clients may pass ?signal=<name> (repeatable) when connecting, or send
// {"type":"subscribe","signal":"<name>"} and "unsubscribe" messages.
type WebSocket struct {
	log          logger.Logger
	upgrader     websocket.Upgrader
	maxConns     int
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewWebSocket creates a WebSocket relay.
func NewWebSocket(log logger.Logger, cfg WebSocketConfig) *WebSocket {
	if log == nil {
		log = logger.Global()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultWSMaxConnections
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	ws := &WebSocket{
		log:          log,
		maxConns:     cfg.MaxConnections,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		clients:      make(map[*wsClient]struct{}),
	}
	allowed := append([]string(nil), cfg.AllowedOrigins...)
	ws.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowed)
		},
	}
	return ws
}

// Name returns "websocket".
func (ws *WebSocket) Name() string {
	return "websocket"
}

// Count returns the number of connected clients.
func (ws *WebSocket) Count() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.clients)
}

// Publish queues r for every interested client. Clients whose buffer is
// full are disconnected rather than blocking the caller.
func (ws *WebSocket) Publish(_ context.Context, r vss.Reading) error {
	data, err := json.Marshal(Message{Name: r.Name, Value: r.Value, EmittedAt: ws.now()})
	if err != nil {
		return err
	}

	var slow []*wsClient
	ws.mu.RLock()
	if ws.closed {
		ws.mu.RUnlock()
		return ErrClosed
	}
	for c := range ws.clients {
		if !c.wants(r.Name) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	ws.mu.RUnlock()

	for _, c := range slow {
		ws.log.Warn("dropping slow websocket client", "remote_addr", c.conn.RemoteAddr().String())
		ws.unregister(c)
	}
	return nil
}

// Close disconnects all clients. New connections are refused afterwards.
func (ws *WebSocket) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.closed = true
	for c := range ws.clients {
		c.close()
		delete(ws.clients, c)
	}
	return nil
}

// Healthy reports whether the relay accepts clients.
func (ws *WebSocket) Healthy() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return !ws.closed
}

func (ws *WebSocket) register(c *wsClient) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return ErrClosed
	}
	if len(ws.clients) >= ws.maxConns {
		return errors.New("websocket connection limit reached")
	}
	ws.clients[c] = struct{}{}
	return nil
}

func (ws *WebSocket) unregister(c *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.clients[c]; !ok {
		return
	}
	delete(ws.clients, c)
	c.close()
}

func (ws *WebSocket) canAccept() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return !ws.closed && len(ws.clients) < ws.maxConns
}

// ServeHTTP upgrades the request and streams readings until the client
// goes away or the relay is closed.
func (ws *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !ws.canAccept() {
		http.Error(w, "websocket connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(conn, r.URL.Query()["signal"])
	if err := ws.register(c); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(ws.writeTimeout),
		)
		_ = conn.Close()
		return
	}
	ws.log.Debug("websocket client connected", "remote_addr", conn.RemoteAddr().String())

	go ws.writePump(c)
	ws.readPump(c)
}

func (ws *WebSocket) readPump(c *wsClient) {
	defer ws.unregister(c)

	readDeadline := ws.pingInterval + ws.pongTimeout
	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var msg subscription
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug("websocket read error", "error", err)
			}
			return
		}
		switch strings.ToLower(strings.TrimSpace(msg.Type)) {
		case "subscribe":
			c.subscribe(msg.Signal)
		case "unsubscribe":
			c.unsubscribe(msg.Signal)
		}
	}
}

// writePump owns all writes to the connection and closes it on exit.
func (ws *WebSocket) writePump(c *wsClient) {
	ticker := time.NewTicker(ws.pingInterval)
	defer func() {
		ticker.Stop()
		ws.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(ws.writeTimeout),
				)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSpace(a), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
